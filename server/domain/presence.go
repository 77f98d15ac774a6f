package domain

import (
	"sync/atomic"
	"time"
)

// Presence は1接続の活動状況を記録します。
// pong の監視はハートビートを送る側だけが有効にします。
type Presence struct {
	lastRead  atomic.Int64
	lastWrite atomic.Int64
	lastPong  atomic.Int64

	watchPong bool
	now       func() time.Time
}

func NewPresence(watchPong bool) *Presence {
	p := &Presence{watchPong: watchPong, now: time.Now}
	now := p.now().UnixNano()
	p.lastRead.Store(now)
	p.lastWrite.Store(now)
	p.lastPong.Store(now)
	return p
}

func (p *Presence) TouchRead()  { p.lastRead.Store(p.now().UnixNano()) }
func (p *Presence) TouchWrite() { p.lastWrite.Store(p.now().UnixNano()) }
func (p *Presence) TouchPong()  { p.lastPong.Store(p.now().UnixNano()) }

func (p *Presence) LastRead() time.Time  { return time.Unix(0, p.lastRead.Load()) }
func (p *Presence) LastWrite() time.Time { return time.Unix(0, p.lastWrite.Load()) }

func (p *Presence) IsIdle(timeout time.Duration) (bool, IdleReason) {
	if timeout <= 0 {
		return false, IdleDisabled
	}
	var reason IdleReason
	if p.idleSince(p.lastRead.Load(), timeout) {
		reason |= IdleRead
	}
	if p.watchPong && p.idleSince(p.lastPong.Load(), timeout) {
		reason |= IdlePong
	}
	return reason != IdleNone, reason
}

func (p *Presence) idleSince(nano int64, timeout time.Duration) bool {
	return p.now().Sub(time.Unix(0, nano)) > timeout
}
