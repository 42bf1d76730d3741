package log

import "github.com/sirupsen/logrus"

// BadgerAdapter satisfies badger.Logger on top of a logrus entry.
// Badger's info chatter (compactions, value log replay) is demoted to debug
// so a normal pipeline run only shows recipe-level progress.
type BadgerAdapter struct {
	*logrus.Entry
}

// NewBadgerAdapter wraps entry for use as badger's logger.
func NewBadgerAdapter(entry *logrus.Entry) *BadgerAdapter {
	return &BadgerAdapter{entry.WithField("component", "badgerdb")}
}

func (l *BadgerAdapter) Errorf(f string, v ...interface{})   { l.Entry.Errorf(f, v...) }
func (l *BadgerAdapter) Warningf(f string, v ...interface{}) { l.Entry.Warnf(f, v...) }
func (l *BadgerAdapter) Infof(f string, v ...interface{})    { l.Entry.Debugf(f, v...) }
func (l *BadgerAdapter) Debugf(f string, v ...interface{})   { l.Entry.Tracef(f, v...) }
