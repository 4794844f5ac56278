// Package history keeps an append-only log of room lifecycle changes. It is
// optional: the relay runs with Nop when no database is configured, and game
// payloads are never stored.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrClosed = errors.New("history store closed")

type Kind string

const (
	KindRoomCreated   Kind = "room_created"
	KindPeerJoined    Kind = "peer_joined"
	KindPlayerLeft    Kind = "player_left"
	KindRoomDestroyed Kind = "room_destroyed"
)

type Entry struct {
	RoomID    string
	SessionID string
	Kind      Kind
	At        time.Time
}

// Recorder must not block; callers are room goroutines.
type Recorder interface {
	Record(Entry)
}

type Nop struct{}

func (Nop) Record(Entry) {}

// RoomEvent is the persisted row.
type RoomEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    string    `gorm:"size:128;index" json:"roomId"`
	SessionID string    `gorm:"size:64" json:"sessionId"`
	Kind      string    `gorm:"size:32" json:"kind"`
	CreatedAt time.Time `json:"at"`
}

func (RoomEvent) TableName() string { return "room_events" }

func toRow(e Entry) RoomEvent {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return RoomEvent{RoomID: e.RoomID, SessionID: e.SessionID, Kind: string(e.Kind), CreatedAt: at}
}

const (
	queueSize = 1024
	batchSize = 64
)

// Store writes entries to Postgres from a single background worker.
type Store struct {
	db    *gorm.DB
	log   *zap.Logger
	queue chan Entry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := db.AutoMigrate(&RoomEvent{}); err != nil {
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return New(db, log), nil
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	s := &Store{
		db:    db,
		log:   log.Named("history"),
		queue: make(chan Entry, queueSize),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

// Record queues e. Entries are dropped when the queue is full.
func (s *Store) Record(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- e:
	default:
		s.log.Warn("history queue full, dropping entry", zap.String("room", e.RoomID), zap.String("kind", string(e.Kind)))
	}
}

func (s *Store) loop() {
	defer close(s.done)
	batch := make([]RoomEvent, 0, batchSize)
	for e := range s.queue {
		batch = append(batch, toRow(e))
	drain:
		for len(batch) < batchSize {
			select {
			case more, ok := <-s.queue:
				if !ok {
					break drain
				}
				batch = append(batch, toRow(more))
			default:
				break drain
			}
		}
		s.flush(batch)
		batch = batch[:0]
	}
}

func (s *Store) flush(rows []RoomEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		s.log.Error("history write failed", zap.Int("rows", len(rows)), zap.Error(err))
	}
}

// Recent returns the newest entries for a room, newest first.
func (s *Store) Recent(ctx context.Context, roomID string, limit int) ([]RoomEvent, error) {
	var out []RoomEvent
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("recent history for %s: %w", roomID, err)
	}
	return out, nil
}

// Close flushes queued entries and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
