package deliver

import "github.com/gen2brain/beeep"

const notifyTextLimit = 120

// BeeepNotifier shows desktop notifications for terminal outcomes.
type BeeepNotifier struct{}

func NewBeeepNotifier() *BeeepNotifier { return &BeeepNotifier{} }

func (n *BeeepNotifier) Notify(title, message string) error {
	if len(message) > notifyTextLimit {
		message = message[:notifyTextLimit] + "…"
	}
	return beeep.Notify(title, message, "")
}
