package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"

	"github.com/eigerco/auditor/internal/audit"
	"github.com/eigerco/auditor/internal/events"
	"github.com/eigerco/auditor/internal/params"
	"github.com/eigerco/auditor/internal/ticktime"
	"github.com/eigerco/auditor/pkg/codec"
	"github.com/eigerco/auditor/pkg/db"
	"github.com/eigerco/auditor/pkg/db/pebble"
	"github.com/eigerco/auditor/pkg/log"
)

var (
	ErrNoSnapshot     = errors.New("no snapshot stored")
	ErrParamsMismatch = errors.New("stored snapshot was taken with different params")
	ErrStateClosed    = errors.New("state store is closed")
)

var paramsKey = makeKey(prefixMeta, []byte("params"))

// State persists audit snapshots and the journal of emitted events.
type State struct {
	db     db.KVStore
	closed atomic.Bool
}

// NewState creates a new state store using KVStore
func NewState(db db.KVStore) *State {
	return &State{db: db}
}

// Entry is one journaled event.
type Entry struct {
	Tick  ticktime.Tick
	Step  uint64
	Event events.Event
}

// part is one component of a snapshot. value points into the snapshot so
// Load can decode in place.
type part struct {
	prefix byte
	value  any
}

func parts(snap *audit.Snapshot) []part {
	return []part{
		{prefixTicker, &snap.Ticker},
		{prefixSeeds, &snap.Seeds},
		{prefixQueue, &snap.Queue},
		{prefixProviders, &snap.Providers},
		{prefixScheduler, &snap.Scheduler},
		{prefixLedger, &snap.Ledger},
		{prefixSweeper, &snap.Sweeper},
	}
}

// Save writes snap, the params it was taken under and the events emitted
// since the previous save in one batch. Events are keyed by the tick and
// step of snap and appended after any already journaled for that step.
func (s *State) Save(p params.Params, snap audit.Snapshot, evs []events.Event) error {
	if s.closed.Load() {
		return ErrStateClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	paramsBytes, err := codec.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if err := batch.Put(paramsKey, paramsBytes); err != nil {
		return fmt.Errorf("store params: %w", err)
	}

	for _, pt := range parts(&snap) {
		b, err := codec.Marshal(reflect.ValueOf(pt.value).Elem().Interface())
		if err != nil {
			return fmt.Errorf("marshal %s: %w", PrefixToString(pt.prefix), err)
		}
		if err := batch.Put(makeKey(pt.prefix, nil), b); err != nil {
			return fmt.Errorf("store %s: %w", PrefixToString(pt.prefix), err)
		}
	}

	tick, step := uint32(snap.Ticker.Tick), snap.Ticker.Ticker
	seq, err := s.nextSeq(tick, step)
	if err != nil {
		return err
	}
	for _, e := range evs {
		body, err := events.Encode(e)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", e.Kind(), err)
		}
		value := append([]byte{byte(e.Kind())}, body...)
		if err := batch.Put(eventKey(tick, step, seq), value); err != nil {
			return fmt.Errorf("store event: %w", err)
		}
		seq++
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	log.Store.Debug().
		Uint32("tick", uint32(snap.Ticker.Tick)).
		Int("events", len(evs)).
		Msg("snapshot saved")
	return nil
}

// nextSeq returns the sequence number following the last event journaled at
// tick and step.
func (s *State) nextSeq(tick uint32, step uint64) (uint32, error) {
	iter, err := s.db.NewIterator(eventKey(tick, step, 0), eventKey(tick, step, math.MaxUint32))
	if err != nil {
		return 0, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var next uint32
	for iter.Next() {
		key := iter.Key()
		if len(key) != eventKeyLen {
			return 0, fmt.Errorf("malformed event key %x", key)
		}
		next = binary.BigEndian.Uint32(key[13:]) + 1
	}
	return next, nil
}

// Load reads the last saved snapshot. It fails with ErrParamsMismatch when
// the snapshot was taken under different params.
func (s *State) Load(p params.Params) (audit.Snapshot, error) {
	if s.closed.Load() {
		return audit.Snapshot{}, ErrStateClosed
	}

	stored, err := s.db.Get(paramsKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return audit.Snapshot{}, ErrNoSnapshot
		}
		return audit.Snapshot{}, fmt.Errorf("get params: %w", err)
	}
	want, err := codec.Marshal(p)
	if err != nil {
		return audit.Snapshot{}, fmt.Errorf("marshal params: %w", err)
	}
	if !bytes.Equal(stored, want) {
		return audit.Snapshot{}, ErrParamsMismatch
	}

	var snap audit.Snapshot
	for _, pt := range parts(&snap) {
		b, err := s.db.Get(makeKey(pt.prefix, nil))
		if err != nil {
			return audit.Snapshot{}, fmt.Errorf("get %s: %w", PrefixToString(pt.prefix), err)
		}
		if err := codec.Unmarshal(b, pt.value); err != nil {
			return audit.Snapshot{}, fmt.Errorf("unmarshal %s: %w", PrefixToString(pt.prefix), err)
		}
	}
	return snap, nil
}

// Events returns the journaled events of ticks in [from, to).
func (s *State) Events(from, to ticktime.Tick) ([]Entry, error) {
	if s.closed.Load() {
		return nil, ErrStateClosed
	}

	iter, err := s.db.NewIterator(eventKey(uint32(from), 0, 0), eventKey(uint32(to), 0, 0))
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var entries []Entry
	for iter.Next() {
		key := iter.Key()
		if len(key) != eventKeyLen {
			return nil, fmt.Errorf("malformed event key %x", key)
		}
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read event: %w", err)
		}
		if len(value) == 0 {
			return nil, fmt.Errorf("empty event at %x", key)
		}
		e, err := events.Decode(events.Kind(value[0]), value[1:])
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Tick:  ticktime.Tick(binary.BigEndian.Uint32(key[1:5])),
			Step:  binary.BigEndian.Uint64(key[5:13]),
			Event: e,
		})
	}
	return entries, nil
}

// PruneEvents deletes the journal of every tick before the given one.
func (s *State) PruneEvents(before ticktime.Tick) error {
	if s.closed.Load() {
		return ErrStateClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(makeKey(prefixEvent, nil), eventKey(uint32(before), 0, 0)); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	return nil
}

// Close closes the state store
func (s *State) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
