package util

import "sync/atomic"

type AtomicBool int32

func (b *AtomicBool) IsSet() bool { return atomic.LoadInt32((*int32)(b)) != 0 }
func (b *AtomicBool) Set()        { atomic.StoreInt32((*int32)(b), 1) }
func (b *AtomicBool) Clear()      { atomic.StoreInt32((*int32)(b), 0) }

// SetIf sets the flag and reports whether it was previously clear.
func (b *AtomicBool) SetIf() bool {
	return atomic.CompareAndSwapInt32((*int32)(b), 0, 1)
}
