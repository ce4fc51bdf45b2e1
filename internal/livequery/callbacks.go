package livequery

import (
	"gorm.io/gorm"
)

// Expander maps a written table to every table whose rows the write may
// have changed (for example through ON DELETE CASCADE). The result should
// include the table itself.
type Expander func(table string) []string

// Attach installs GORM callbacks that publish the written table (expanded
// through expand, when non-nil) after every successful create, update or
// delete. Writes issued with a context prepared by Broker.Transaction are
// held back until that transaction commits.
func Attach(db *gorm.DB, b *Broker, expand Expander) error {
	notify := func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement == nil || tx.Statement.Table == "" {
			return
		}
		if tx.RowsAffected == 0 {
			return
		}
		tables := []string{tx.Statement.Table}
		if expand != nil {
			tables = expand(tx.Statement.Table)
		}
		if p := pendingFrom(tx.Statement.Context); p != nil {
			p.add(tables...)
			return
		}
		b.Publish(tables...)
	}

	if err := db.Callback().Create().After("gorm:create").Register("livequery:after_create", notify); err != nil {
		return err
	}
	if err := db.Callback().Update().After("gorm:update").Register("livequery:after_update", notify); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:delete").Register("livequery:after_delete", notify)
}
