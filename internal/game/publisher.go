package game

// ChangeRecorder receives every externally visible change made to the stores.
// Stores call it while they hold the per-key lock of the changed record, so
// for a single id the calls arrive in the order the writes were applied.
// Implementations must not call back into the stores.
type ChangeRecorder interface {
	EntityChanged(e Entity)
	EntityRemoved(id string)
	PlayerChanged(p Player)
	PlayerRemoved(id string)
}

type nopRecorder struct{}

func (nopRecorder) EntityChanged(Entity) {}
func (nopRecorder) EntityRemoved(string) {}
func (nopRecorder) PlayerChanged(Player) {}
func (nopRecorder) PlayerRemoved(string) {}
