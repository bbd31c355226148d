package model

import (
	"fmt"
	"time"

	"agentchat/config"
)

// NoticeLevel is the severity of a Notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeWarning:
		return "warning"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a non-fatal message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
	At    time.Time
}

func (m *Model) notify(level NoticeLevel, format string, args ...any) {
	n := Notice{Level: level, Text: fmt.Sprintf(format, args...), At: time.Now()}
	m.Notices = append(m.Notices, n)
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Model] Notice (%s): %s", n.Level, n.Text)
	}
}

// TakeNotices returns and clears the pending notices.
func (m *Model) TakeNotices() []Notice {
	notices := m.Notices
	m.Notices = nil
	return notices
}
