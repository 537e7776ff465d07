package main

import (
	"github.com/asdine/storm/v3"
	"github.com/elevarm/goelevarm/onboard"
)

// StormMoveLog persists finished moves for post-run review.
type StormMoveLog struct {
	db *storm.DB
}

func NewStormMoveLog(db *storm.DB) (*StormMoveLog, error) {
	if err := db.Init(&onboard.MoveRecord{}); err != nil {
		return nil, err
	}
	return &StormMoveLog{db: db}, nil
}

func (l *StormMoveLog) RecordMove(rec onboard.MoveRecord) error {
	return l.db.Save(&rec)
}

// Recent returns up to limit finished moves, newest first.
func (l *StormMoveLog) Recent(limit int) (records []onboard.MoveRecord, err error) {
	err = l.db.AllByIndex("ID", &records, storm.Limit(limit), storm.Reverse())
	if err == storm.ErrNotFound {
		return nil, nil
	}
	return
}
