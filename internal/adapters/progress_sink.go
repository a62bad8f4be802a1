package adapters

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"sysroot-txn/internal/ports"
)

type ProgressEventKind string

const (
	ProgressEventMessage  ProgressEventKind = "message"
	ProgressEventProgress ProgressEventKind = "progress"
	ProgressEventEnd      ProgressEventKind = "progress-end"
	ProgressEventTitle    ProgressEventKind = "title"
)

type ProgressEvent struct {
	Kind    ProgressEventKind
	Text    string
	Percent int
}

// ChannelSink forwards progress events to a buffered channel. Events are
// dropped, and counted, when the buffer is full.
type ChannelSink struct {
	events  chan ProgressEvent
	dropped atomic.Int64
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan ProgressEvent, buffer)}
}

func (s *ChannelSink) Events() <-chan ProgressEvent {
	return s.events
}

// Dropped is the number of events lost to a full buffer.
func (s *ChannelSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *ChannelSink) emit(event ProgressEvent) {
	select {
	case s.events <- event:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) Message(text string) {
	s.emit(ProgressEvent{Kind: ProgressEventMessage, Text: text})
}

func (s *ChannelSink) Progress(text string, percent int) {
	s.emit(ProgressEvent{Kind: ProgressEventProgress, Text: text, Percent: percent})
}

func (s *ChannelSink) ProgressEnd() {
	s.emit(ProgressEvent{Kind: ProgressEventEnd})
}

func (s *ChannelSink) Title(title string) {
	s.emit(ProgressEvent{Kind: ProgressEventTitle, Text: title})
}

// WriterSink prints progress for a terminal. Write errors are ignored.
type WriterSink struct {
	mu         sync.Mutex
	out        io.Writer
	title      *color.Color
	inProgress bool
}

func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{out: out, title: color.New(color.FgCyan, color.Bold)}
}

func (s *WriterSink) Message(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLine()
	_, _ = fmt.Fprintln(s.out, text)
}

func (s *WriterSink) Progress(text string, percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = true
	_, _ = fmt.Fprintf(s.out, "\r%s %s", text, color.YellowString("%3d%%", percent))
}

func (s *WriterSink) ProgressEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLine()
}

func (s *WriterSink) Title(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endLine()
	_, _ = s.title.Fprintln(s.out, title)
}

func (s *WriterSink) endLine() {
	if s.inProgress {
		_, _ = fmt.Fprintln(s.out)
		s.inProgress = false
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Message(string)       {}
func (NopSink) Progress(string, int) {}
func (NopSink) ProgressEnd()         {}
func (NopSink) Title(string)         {}

var (
	_ ports.ProgressSink = (*ChannelSink)(nil)
	_ ports.ProgressSink = (*WriterSink)(nil)
	_ ports.ProgressSink = NopSink{}
)
