// Package archive keeps an append-only record of completed chat turns in a
// relational store. It is optional plumbing: the conversational state itself
// lives in the session store, and archive failures never surface to users.
package archive

import (
	"context"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Turn is one completed exchange: the user's utterance and the character's
// sanitized reply.
type Turn struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	CharName  string    `gorm:"type:varchar(128);index;not null" json:"char_name"`
	Utterance string    `gorm:"type:text;not null" json:"utterance"`
	Reply     string    `gorm:"type:text;not null" json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}

func (Turn) TableName() string { return "chat_turns" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Connect opens the archive database and migrates the schema. A
// "mysql://" prefixed DSN selects the mysql driver; anything else is a
// sqlite path.
func Connect(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if rest, ok := strings.CutPrefix(dsn, "mysql://"); ok {
		db, err := gorm.Open(mysql.Open(rest), cfg)
		if err != nil {
			return nil, err
		}
		return db, db.AutoMigrate(&Turn{})
	}

	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	return db, db.AutoMigrate(&Turn{})
}

// RecordTurn appends one completed exchange.
func (r *Repo) RecordTurn(ctx context.Context, userID, charName, utterance, reply string) error {
	return r.db.WithContext(ctx).Create(&Turn{
		UserID:    userID,
		CharName:  charName,
		Utterance: utterance,
		Reply:     reply,
	}).Error
}

// ListRecentTurns returns the newest turns for a user in DESC id order
// (newest first).
func (r *Repo) ListRecentTurns(ctx context.Context, userID string, limit int) ([]Turn, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var turns []Turn
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}
	return turns, nil
}
