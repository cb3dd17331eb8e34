package combat

// Damage is the damage one blow deals: attack minus defense, at least 1.
func Damage(attack, defense int) int {
	return max(1, attack-defense)
}

// HitsToKill is the number of blows needed to take hp down to 0.
func HitsToKill(hp, attack, defense int) int {
	if hp <= 0 {
		return 0
	}
	d := Damage(attack, defense)
	return (hp + d - 1) / d
}

// damageVerbs is ordered by ceiling. Starting attack stats top out around 16,
// so the table is dense at the low end.
var damageVerbs = []struct {
	upTo int
	verb string
}{
	{1, "scratches"},
	{3, "grazes"},
	{6, "hits"},
	{9, "strikes"},
	{13, "smashes"},
	{18, "mauls"},
	{25, "devastates"},
}

// DamageVerb describes a blow in the third person: "Aria {verb} the goblin".
func DamageVerb(damage int) string {
	for _, d := range damageVerbs {
		if damage <= d.upTo {
			return d.verb
		}
	}
	return "obliterates"
}
