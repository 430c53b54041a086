package space

import "time"

// SetSleep replaces the pacing sleep between session transfers.
func (m *Migrator) SetSleep(fn func(time.Duration)) { m.sleep = fn }
