package bedrock

import (
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/go-go-golems/ai-threads/pkg/inference/engine"
	"github.com/rs/zerolog/log"
)

// ContentBlockMerger reassembles a Bedrock converse stream. Text deltas are
// accumulated per content block index. Blocks can start and grow
// independently, and the first delta seen for an index defines its text.
//
// The deltas returned by Add always extend Text() at its end. The lowest
// block that has not stopped streams live; text for higher blocks is held
// back until every block before it has stopped, or until Flush.
//
// Usage:
//  1. Create a merger with NewContentBlockMerger()
//  2. Call Add() for each streaming event and forward the returned deltas
//  3. Call Flush() when the event stream ends and forward its deltas
//  4. Use Text() for the accumulated response and Usage() for the token report
type ContentBlockMerger struct {
	blocks  map[int]*strings.Builder
	closed  map[int]bool
	emitted map[int]int
	// current is the lowest block that has not stopped
	current int
	flushed bool

	usage   *engine.Usage
	started bool
	stopped bool

	stopReason string
}

func NewContentBlockMerger() *ContentBlockMerger {
	return &ContentBlockMerger{
		blocks:  make(map[int]*strings.Builder),
		closed:  make(map[int]bool),
		emitted: make(map[int]int),
	}
}

// Add processes one event and returns the normalized text deltas it produced.
// Usage is retained and reported once through Usage().
func (m *ContentBlockMerger) Add(event types.ConverseStreamOutput) []engine.Delta {
	switch v := event.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		m.started = true
		log.Trace().Str("role", string(v.Value.Role)).Msg("Bedrock message start")

	case *types.ConverseStreamOutputMemberContentBlockStart:
		log.Trace().Int32("index", deref(v.Value.ContentBlockIndex)).Msg("Bedrock content block start")

	case *types.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(deref(v.Value.ContentBlockIndex))
		switch d := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			return m.addText(idx, d.Value)
		default:
			log.Trace().Int("index", idx).Msgf("Skipping non-text delta %T", d)
		}

	case *types.ConverseStreamOutputMemberContentBlockStop:
		idx := int(deref(v.Value.ContentBlockIndex))
		log.Trace().Int("index", idx).Msg("Bedrock content block stop")
		return m.stopBlock(idx)

	case *types.ConverseStreamOutputMemberMessageStop:
		m.stopped = true
		m.stopReason = string(v.Value.StopReason)
		return m.Flush()

	case *types.ConverseStreamOutputMemberMetadata:
		if v.Value.Usage != nil {
			m.usage = &engine.Usage{
				Input:  int(deref(v.Value.Usage.InputTokens)),
				Output: int(deref(v.Value.Usage.OutputTokens)),
			}
		}

	default:
		log.Debug().Msgf("Unknown bedrock stream event %T", v)
	}
	return nil
}

func (m *ContentBlockMerger) addText(idx int, text string) []engine.Delta {
	b, ok := m.blocks[idx]
	if !ok {
		b = &strings.Builder{}
		m.blocks[idx] = b
	}
	b.WriteString(text)
	if text == "" || (!m.flushed && idx > m.current) {
		return nil
	}
	if idx < m.current {
		log.Debug().Int("index", idx).Msg("Text for a block that already stopped")
	}
	m.emitted[idx] += len(text)
	return []engine.Delta{engine.TextDelta(text)}
}

// pending returns the held back text of block idx and marks it emitted.
func (m *ContentBlockMerger) pending(idx int) []engine.Delta {
	b, ok := m.blocks[idx]
	if !ok {
		return nil
	}
	rest := b.String()[m.emitted[idx]:]
	if rest == "" {
		return nil
	}
	m.emitted[idx] = b.Len()
	return []engine.Delta{engine.TextDelta(rest)}
}

func (m *ContentBlockMerger) stopBlock(idx int) []engine.Delta {
	m.closed[idx] = true
	if m.flushed {
		return nil
	}
	var ret []engine.Delta
	for m.closed[m.current] {
		m.current++
		ret = append(ret, m.pending(m.current)...)
	}
	return ret
}

// Flush releases all held back text in index order. Text arriving after a
// flush is passed through as it comes.
func (m *ContentBlockMerger) Flush() []engine.Delta {
	if m.flushed {
		return nil
	}
	m.flushed = true
	var ret []engine.Delta
	for _, i := range m.indexes() {
		ret = append(ret, m.pending(i)...)
	}
	return ret
}

func (m *ContentBlockMerger) indexes() []int {
	idxs := make([]int, 0, len(m.blocks))
	for i := range m.blocks {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)
	return idxs
}

// Text concatenates the accumulated blocks in index order.
func (m *ContentBlockMerger) Text() string {
	var sb strings.Builder
	for _, i := range m.indexes() {
		sb.WriteString(m.blocks[i].String())
	}
	return sb.String()
}

// Block returns the accumulated text of a single content block.
func (m *ContentBlockMerger) Block(idx int) (string, bool) {
	b, ok := m.blocks[idx]
	if !ok {
		return "", false
	}
	return b.String(), true
}

func (m *ContentBlockMerger) Usage() *engine.Usage {
	return m.usage
}

func (m *ContentBlockMerger) Stopped() bool {
	return m.stopped
}

func (m *ContentBlockMerger) StopReason() string {
	return m.stopReason
}

func deref(i *int32) int32 {
	if i == nil {
		return 0
	}
	return *i
}
