package game

// MaxLevel is the highest level a character can reach.
const MaxLevel = 50

// levelTable holds the cumulative XP required to reach each level.
// Index 0 = level 1 (0 XP), index 1 = level 2 (100 XP), index 2 = level 3 (300 XP), etc.
var levelTable = func() [MaxLevel]int {
	var t [MaxLevel]int
	for i := range t {
		t[i] = 100 * i * (i + 1) / 2
	}
	return t
}()

// ExpForLevel returns the cumulative XP required to reach the given level.
func ExpForLevel(level int) int {
	if level < 1 {
		return 0
	}
	if level > MaxLevel {
		return levelTable[MaxLevel-1]
	}
	return levelTable[level-1]
}

// ExpToNextLevel returns the remaining XP needed to reach the next level.
func ExpToNextLevel(level, experience int) int {
	if level >= MaxLevel {
		return 0
	}
	remaining := ExpForLevel(level+1) - experience
	if remaining < 0 {
		return 0
	}
	return remaining
}

// KillExperience is the XP awarded for defeating a monster: 10 × max(1, maxHP/20).
func KillExperience(maxHP int) int {
	return 10 * max(1, maxHP/20)
}

// GainExperience adds XP to the player and applies any level ups. Each level
// gained refills HP and MP. It returns the number of levels gained.
func (p *Player) GainExperience(amount int) int {
	if amount <= 0 {
		return 0
	}
	p.Experience += amount

	gained := 0
	for p.Level < MaxLevel && p.Experience >= ExpForLevel(p.Level+1) {
		p.Level++
		gained++
	}
	if gained > 0 {
		p.HP = p.MaxHP
		p.MP = p.MaxMP
	}
	return gained
}
