package io

import (
	"bufio"
	"fmt"
	stdio "io"
	"sync"

	"go.uber.org/zap"

	"gaitevo/internal/model"
)

// ScriptedSource yields one scripted key per poll, then nothing. KeyNone
// entries stand for ticks without input.
type ScriptedSource struct {
	mu   sync.Mutex
	keys []model.Key
	next int
}

func NewScriptedSource(keys ...model.Key) *ScriptedSource {
	return &ScriptedSource{keys: append([]model.Key(nil), keys...)}
}

func (s *ScriptedSource) PollKey() (model.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.keys) {
		return model.KeyNone, false
	}
	key := s.keys[s.next]
	s.next++
	if key == model.KeyNone {
		return model.KeyNone, false
	}
	return key, true
}

// Remaining reports how many scripted entries have not been polled yet.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys) - s.next
}

// ChannelSource polls a channel without blocking. Keys sent faster than one
// per tick wait in the channel buffer; a full buffer drops them.
type ChannelSource struct {
	ch chan model.Key
}

func NewChannelSource(buffer int) *ChannelSource {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSource{ch: make(chan model.Key, buffer)}
}

// Offer enqueues a key and reports whether it was accepted.
func (s *ChannelSource) Offer(key model.Key) bool {
	select {
	case s.ch <- key:
		return true
	default:
		return false
	}
}

func (s *ChannelSource) PollKey() (model.Key, bool) {
	select {
	case key := <-s.ch:
		return key, key != model.KeyNone
	default:
		return model.KeyNone, false
	}
}

// LineSource reads one key name per line from a reader in the background
// and exposes them through a ChannelSource.
type LineSource struct {
	*ChannelSource

	logger *zap.Logger
	done   chan struct{}
}

func NewLineSource(r stdio.Reader, logger *zap.Logger) *LineSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LineSource{
		ChannelSource: NewChannelSource(1),
		logger:        logger.Named("keys"),
		done:          make(chan struct{}),
	}
	go s.pump(r)
	return s
}

func (s *LineSource) pump(r stdio.Reader) {
	defer close(s.done)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			line = " "
		}
		key, err := ParseKey(line)
		if err != nil {
			s.logger.Warn("ignoring key input", zap.String("line", line), zap.Error(err))
			continue
		}
		if !s.Offer(key) {
			s.logger.Debug("key dropped, previous key not yet consumed", zap.Stringer("key", key))
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("key input closed", zap.Error(err))
	}
}

// Done is closed once the underlying reader is exhausted.
func (s *LineSource) Done() <-chan struct{} {
	return s.done
}

// LogSink writes status lines to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LogSink{logger: logger.Named("status")}
}

func (s LogSink) Emit(text string) {
	s.logger.Info(text)
}

// WriterSink prints status lines verbatim.
type WriterSink struct {
	mu sync.Mutex
	w  stdio.Writer
}

func NewWriterSink(w stdio.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Emit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, text)
}

// MemorySink keeps emitted lines, mostly for tests and embedding hosts.
type MemorySink struct {
	mu    sync.Mutex
	lines []string
}

func (s *MemorySink) Emit(text string) {
	s.mu.Lock()
	s.lines = append(s.lines, text)
	s.mu.Unlock()
}

func (s *MemorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}
