package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	targetMaxLen     = 70
	writePreviewMax  = 4
	thinkingDedupLen = 200
)

// Parser decodes stream-json lines from the agent runtime into Envelopes.
// One line can yield zero or more events: verbose streams resend whole
// assistant messages as blocks complete, so the parser dedups tool blocks by
// id, usage by message id, and thinking blocks by content prefix.
type Parser struct {
	seenTools    map[string]bool
	seenMessages map[string]bool
	seenThinking map[string]string // content prefix -> node id
	blocks       map[int]*activeBlock
	thinkingSeq  int
}

type activeBlock struct {
	kind      string
	id        string
	name      string
	jsonParts []string
	textParts []string
	startedAt time.Time
	parentID  string
	nodeID    string
	announced bool
}

// NewParser returns a parser with empty dedup state. One parser per session.
func NewParser() *Parser {
	return &Parser{
		seenTools:    make(map[string]bool),
		seenMessages: make(map[string]bool),
		seenThinking: make(map[string]string),
		blocks:       make(map[int]*activeBlock),
	}
}

type rawLine struct {
	Type            string          `json:"type"`
	Subtype         string          `json:"subtype"`
	SessionID       string          `json:"session_id"`
	ParentToolUseID string          `json:"parent_tool_use_id"`
	Event           json.RawMessage `json:"event"`
	Message         json.RawMessage `json:"message"`
	Model           string          `json:"model"`
	Result          string          `json:"result"`
	IsError         bool            `json:"is_error"`
	TotalCostUSD    float64         `json:"total_cost_usd"`
	Usage           json.RawMessage `json:"usage"`
	Delta           json.RawMessage `json:"delta"`
	Index           int             `json:"index"`
	ContentBlock    json.RawMessage `json:"content_block"`
}

type rawMessage struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
	Usage   json.RawMessage `json:"usage"`
}

type rawBlock struct {
	Type      string          `json:"type"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
	Thinking  string          `json:"thinking"`
	Text      string          `json:"text"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type rawUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

type rawDelta struct {
	Type        string          `json:"type"`
	Text        string          `json:"text"`
	PartialJSON string          `json:"partial_json"`
	Thinking    string          `json:"thinking"`
	Usage       json.RawMessage `json:"usage"`
}

// ParseLine decodes one JSONL line. Blank lines yield no events and no
// error; non-JSON lines return an error the caller may downgrade to a
// diagnostic.
func (p *Parser) ParseLine(line string) ([]Envelope, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	var rec rawLine
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil, fmt.Errorf("decode stream line: %w", err)
	}

	now := time.Now()
	parentID := rec.ParentToolUseID

	// stream_event wraps a raw API event; the parent id rides on the wrapper.
	if rec.Type == "stream_event" && len(rec.Event) > 0 {
		var inner rawLine
		if err := json.Unmarshal(rec.Event, &inner); err != nil {
			return nil, fmt.Errorf("decode wrapped stream event: %w", err)
		}
		inner.ParentToolUseID = parentID
		inner.SessionID = rec.SessionID
		rec = inner
	}

	switch rec.Type {
	case "system":
		if rec.Subtype == "init" {
			return []Envelope{{
				Kind:      KindSessionStart,
				SessionID: parentID,
				Timestamp: now,
				Model:     rec.Model,
				Raw:       line,
			}}, nil
		}
		return nil, nil
	case "assistant":
		return p.parseAssistant(rec, parentID, now, line)
	case "user":
		return p.parseUser(rec, parentID, now)
	case "result":
		return p.parseResult(rec, now, line)
	case "message_start":
		var msg rawMessage
		if err := json.Unmarshal(rec.Message, &msg); err == nil {
			return p.usageEvents(msg.Usage, msg.ID, parentID, now), nil
		}
		return nil, nil
	case "message_delta":
		evs := p.usageEvents(rec.Usage, "", parentID, now)
		var delta rawDelta
		if err := json.Unmarshal(rec.Delta, &delta); err == nil {
			evs = append(evs, p.usageEvents(delta.Usage, "", parentID, now)...)
		}
		return evs, nil
	case "content_block_start":
		return p.onBlockStart(rec, parentID, now)
	case "content_block_delta":
		return p.onBlockDelta(rec, now), nil
	case "content_block_stop":
		return p.onBlockStop(rec, now), nil
	case "ping":
		return nil, nil
	default:
		return []Envelope{{Kind: KindUnknown, SessionID: parentID, Timestamp: now, Raw: line}}, nil
	}
}

func (p *Parser) parseAssistant(rec rawLine, parentID string, now time.Time, line string) ([]Envelope, error) {
	var msg rawMessage
	if err := json.Unmarshal(rec.Message, &msg); err != nil {
		return nil, fmt.Errorf("decode assistant message: %w", err)
	}

	var events []Envelope

	// Usage is collected once per message id; verbose mode resends the same
	// message as blocks complete.
	if msg.ID == "" || !p.seenMessages[msg.ID] {
		if msg.ID != "" {
			p.seenMessages[msg.ID] = true
		}
		events = append(events, p.usageEvents(msg.Usage, msg.ID, parentID, now)...)
	}

	if msg.Model != "" && parentID == "" {
		events = append(events, Envelope{
			Kind:      KindSessionStart,
			Timestamp: now,
			Model:     msg.Model,
		})
	}

	var blocks []rawBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return events, nil
	}

	for _, block := range blocks {
		switch block.Type {
		case "tool_use":
			events = append(events, p.toolUseEvents(block, parentID, now)...)
		case "thinking":
			events = append(events, p.thinkingEvents(block.Thinking, parentID, now)...)
		}
	}
	return events, nil
}

// toolUseEvents emits the start (and spawn) events for one tool_use block,
// deduped by tool id.
func (p *Parser) toolUseEvents(block rawBlock, parentID string, now time.Time) []Envelope {
	if block.ID != "" && p.seenTools[block.ID] {
		return nil
	}
	if block.ID != "" {
		p.seenTools[block.ID] = true
	}

	input := decodeInput(block.Input)

	if block.Name == "Task" {
		desc, _ := input["description"].(string)
		model, _ := input["model"].(string)
		return []Envelope{{
			Kind:      KindSubagentSpawn,
			NodeID:    block.ID,
			SessionID: parentID,
			Timestamp: now,
			Target:    desc,
			Model:     model,
		}}
	}

	ev := Envelope{
		Kind:      KindToolStart,
		NodeID:    block.ID,
		SessionID: parentID,
		Timestamp: now,
		Tool:      ClassifyTool(block.Name),
		ToolName:  block.Name,
		Target:    ToolTarget(block.Name, input),
	}
	switch ev.Tool {
	case ToolEdit:
		ev.Diff = editDiff(input)
	case ToolWrite:
		ev.Detail = writePreview(input)
	}
	return []Envelope{ev}
}

// thinkingEvents emits a start+done pair for a genuinely new thinking block.
// Progressive resends of the same block (growing text) are skipped.
func (p *Parser) thinkingEvents(text string, parentID string, now time.Time) []Envelope {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	prefix := trimmed
	if len(prefix) > thinkingDedupLen {
		prefix = prefix[:thinkingDedupLen]
	}
	if _, ok := p.seenThinking[prefix]; ok {
		return nil
	}
	for seen := range p.seenThinking {
		if strings.HasPrefix(prefix, seen) || strings.HasPrefix(seen, prefix) {
			p.seenThinking[prefix] = p.seenThinking[seen]
			return nil
		}
	}

	p.thinkingSeq++
	id := fmt.Sprintf("thinking-%s-%d", shortID(), p.thinkingSeq)
	p.seenThinking[prefix] = id

	return []Envelope{
		{
			Kind:      KindThinkingStart,
			NodeID:    id,
			SessionID: parentID,
			Timestamp: now,
		},
		{
			Kind:      KindThinkingDone,
			NodeID:    id,
			SessionID: parentID,
			Timestamp: now,
			Text:      trimmed,
			Tokens:    EstimateTokens(trimmed),
		},
	}
}

func (p *Parser) parseUser(rec rawLine, parentID string, now time.Time) ([]Envelope, error) {
	var msg rawMessage
	if err := json.Unmarshal(rec.Message, &msg); err != nil {
		return nil, nil
	}
	var blocks []rawBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil, nil
	}

	var events []Envelope
	for _, block := range blocks {
		if block.Type != "tool_result" || block.ToolUseID == "" {
			continue
		}
		events = append(events, Envelope{
			Kind:      KindToolDone,
			NodeID:    block.ToolUseID,
			SessionID: parentID,
			Timestamp: now,
			Failed:    block.IsError,
			Result:    resultSummary(block.Content),
		})
	}
	return events, nil
}

func (p *Parser) parseResult(rec rawLine, now time.Time, line string) ([]Envelope, error) {
	events := p.usageEvents(rec.Usage, "result", "", now)
	events = append(events, Envelope{
		Kind:      KindSessionEnd,
		Timestamp: now,
		Failed:    rec.IsError || strings.HasPrefix(rec.Subtype, "error"),
		Result:    rec.Result,
		Cost:      rec.TotalCostUSD,
		Raw:       line,
	})
	return events, nil
}

func (p *Parser) usageEvents(raw json.RawMessage, dedupKey, parentID string, now time.Time) []Envelope {
	if len(raw) == 0 {
		return nil
	}
	var u rawUsage
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil
	}
	usage := Usage{
		Input:         u.InputTokens,
		Output:        u.OutputTokens,
		CacheRead:     u.CacheReadInputTokens,
		CacheCreation: u.CacheCreationInputTokens,
	}
	if usage == (Usage{}) {
		return nil
	}
	return []Envelope{{
		Kind:      KindTokenUsage,
		SessionID: parentID,
		Timestamp: now,
		Usage:     &usage,
	}}
}

// Streaming (partial) mode: raw content_block_* events.

func (p *Parser) onBlockStart(rec rawLine, parentID string, now time.Time) ([]Envelope, error) {
	var block rawBlock
	if err := json.Unmarshal(rec.ContentBlock, &block); err != nil {
		return nil, fmt.Errorf("decode content block: %w", err)
	}
	ab := &activeBlock{
		kind:      block.Type,
		id:        block.ID,
		name:      block.Name,
		startedAt: now,
		parentID:  parentID,
	}
	p.blocks[rec.Index] = ab

	if block.Type == "thinking" {
		p.thinkingSeq++
		ab.nodeID = fmt.Sprintf("thinking-%s-%d", shortID(), p.thinkingSeq)
		ab.announced = true
		return []Envelope{{
			Kind:      KindThinkingStart,
			NodeID:    ab.nodeID,
			SessionID: parentID,
			Timestamp: now,
		}}, nil
	}
	return nil, nil
}

func (p *Parser) onBlockDelta(rec rawLine, now time.Time) []Envelope {
	block, ok := p.blocks[rec.Index]
	if !ok {
		return nil
	}
	var delta rawDelta
	if err := json.Unmarshal(rec.Delta, &delta); err != nil {
		return nil
	}
	switch delta.Type {
	case "text_delta":
		block.textParts = append(block.textParts, delta.Text)
	case "input_json_delta":
		block.jsonParts = append(block.jsonParts, delta.PartialJSON)
	case "thinking_delta":
		block.textParts = append(block.textParts, delta.Thinking)
	}
	return nil
}

func (p *Parser) onBlockStop(rec rawLine, now time.Time) []Envelope {
	block, ok := p.blocks[rec.Index]
	if !ok {
		return nil
	}
	delete(p.blocks, rec.Index)

	switch block.kind {
	case "thinking":
		text := strings.TrimSpace(strings.Join(block.textParts, ""))
		if text == "" || !block.announced {
			return nil
		}
		prefix := text
		if len(prefix) > thinkingDedupLen {
			prefix = prefix[:thinkingDedupLen]
		}
		p.seenThinking[prefix] = block.nodeID
		return []Envelope{{
			Kind:      KindThinkingDone,
			NodeID:    block.nodeID,
			SessionID: block.parentID,
			Timestamp: now,
			Text:      text,
			Tokens:    EstimateTokens(text),
		}}
	case "tool_use":
		completed := rawBlock{Type: "tool_use", ID: block.id, Name: block.name}
		if raw := strings.Join(block.jsonParts, ""); raw != "" {
			completed.Input = json.RawMessage(raw)
		}
		return p.toolUseEvents(completed, block.parentID, now)
	}
	return nil
}

// ToolTarget builds the one-line target summary shown next to a tool name:
// commands are truncated, long paths keep their last two components.
func ToolTarget(name string, input map[string]any) string {
	str := func(key string) string {
		v, _ := input[key].(string)
		return v
	}
	switch ClassifyTool(name) {
	case ToolBash:
		return truncate(str("command"), targetMaxLen)
	case ToolRead, ToolWrite, ToolEdit:
		return shortPath(str("file_path"))
	case ToolGlob:
		return str("pattern")
	case ToolGrep:
		pat := str("pattern")
		if path := str("path"); path != "" {
			return "/" + pat + "/ in " + path
		}
		return "/" + pat + "/"
	case ToolWebSearch:
		if url := str("url"); url != "" {
			return truncate(url, targetMaxLen)
		}
		return truncate(str("query"), targetMaxLen)
	default:
		buf, err := json.Marshal(input)
		if err != nil || len(input) == 0 {
			return ""
		}
		return truncate(string(buf), 60)
	}
}

// editDiff derives the diff summary from an Edit tool's old/new strings: the
// removed lines are those no longer present, the added lines are new.
func editDiff(input map[string]any) *Diff {
	oldStr, _ := input["old_string"].(string)
	newStr, _ := input["new_string"].(string)
	if oldStr == "" && newStr == "" {
		return nil
	}

	oldLines := splitLines(oldStr)
	newLines := splitLines(newStr)

	remaining := make(map[string]int, len(newLines))
	for _, l := range newLines {
		remaining[l]++
	}
	var removed []string
	for _, l := range oldLines {
		if remaining[l] > 0 {
			remaining[l]--
			continue
		}
		removed = append(removed, l)
	}
	taken := make(map[string]int, len(oldLines))
	for _, l := range oldLines {
		taken[l]++
	}
	var added []string
	for _, l := range newLines {
		if taken[l] > 0 {
			taken[l]--
			continue
		}
		added = append(added, l)
	}

	if len(added) == 0 && len(removed) == 0 {
		return nil
	}
	return &Diff{
		LinesAdded:   len(added),
		LinesRemoved: len(removed),
		Before:       removed,
		After:        added,
	}
}

func writePreview(input map[string]any) []string {
	content, _ := input["content"].(string)
	if content == "" {
		return nil
	}
	lines := splitLines(content)
	total := len(lines)
	preview := []string{fmt.Sprintf("(new file, %d lines)", total)}
	for i, line := range lines {
		if i >= writePreviewMax {
			preview = append(preview, "…")
			break
		}
		preview = append(preview, truncate(line, targetMaxLen))
	}
	return preview
}

func resultSummary(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return truncate(firstLine(text), targetMaxLen)
	}
	var blocks []rawBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		for _, b := range blocks {
			if b.Text != "" {
				return truncate(firstLine(b.Text), targetMaxLen)
			}
		}
	}
	return ""
}

func decodeInput(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var input map[string]any
	if err := json.Unmarshal(raw, &input); err != nil {
		return map[string]any{}
	}
	return input
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return strings.Join(parts[len(parts)-2:], "/")
	}
	return path
}

func shortID() string {
	return uuid.NewString()[:8]
}
