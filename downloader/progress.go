package downloader

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const (
	progressStep     = 5
	progressInterval = 10 * time.Second
)

// progress logs a line every 5% or every 10 seconds, whichever comes first.
// With an unknown total only the time-based lines are emitted.
type progress struct {
	label    string
	total    int64
	written  int64
	lastPct  int
	lastLog  time.Time
	now      func() time.Time
	logLines int
}

func newProgress(label string, total int64) *progress {
	return &progress{label: label, total: total, lastLog: time.Now(), now: time.Now}
}

func (p *progress) Write(b []byte) (int, error) {
	p.written += int64(len(b))

	pct := -1
	if p.total > 0 {
		pct = int(p.written * 100 / p.total)
	}
	now := p.now()
	stepped := pct >= 0 && pct/progressStep > p.lastPct/progressStep
	if !stepped && now.Sub(p.lastLog) < progressInterval {
		return len(b), nil
	}

	if pct >= 0 {
		p.lastPct = pct
		logrus.Infof("Download progress: %s %d%% (%s / %s)", p.label, pct,
			humanize.Bytes(uint64(p.written)), humanize.Bytes(uint64(p.total)))
	} else {
		logrus.Infof("Download progress: %s %s", p.label, humanize.Bytes(uint64(p.written)))
	}
	p.lastLog = now
	p.logLines++
	return len(b), nil
}
