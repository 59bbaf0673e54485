package auth

import "time"

func (k *Keyring) SetClock(now func() time.Time) {
	k.now = now
}
