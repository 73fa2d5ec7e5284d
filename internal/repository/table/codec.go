package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oggyb/outreach-campaigns/internal/domain/message"
)

// Columns is the persisted column order.
var Columns = []string{
	"id",
	"name",
	"phone",
	"message",
	"sent_at",
	"delivery_status",
	"message_id",
	"last_updated",
	"retry_count",
	"next_retry_at",
	"followup_status",
	"followup_sent_at",
	"followup_message",
	"reply_history",
}

// Encode writes the header and one row per record.
func Encode(w io.Writer, rows []*message.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}

	for _, m := range rows {
		replies := m.Replies
		if replies == nil {
			replies = []message.Reply{}
		}
		history, err := json.Marshal(replies)
		if err != nil {
			return fmt.Errorf("encode reply history for %s: %w", m.ID, err)
		}

		record := []string{
			m.ID.String(),
			m.Name,
			m.Phone,
			m.Body,
			formatTime(m.SentAt),
			string(m.Status),
			m.ProviderID,
			formatTime(m.LastUpdated),
			strconv.Itoa(m.RetryCount),
			formatTimePtr(m.NextRetryAt),
			string(m.FollowupStatus),
			formatTimePtr(m.FollowupSentAt),
			m.FollowupBody,
			string(history),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Decode reads a table written by Encode. Columns are matched by header name,
// so older files with reordered or missing columns still load.
func Decode(r io.Reader) ([]*message.Message, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return []*message.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(strings.ToLower(h))] = i
	}

	rows := []*message.Message{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		m, err := decodeRow(index, record, line)
		if err != nil {
			return nil, err
		}
		rows = append(rows, m)
	}
	return rows, nil
}

func decodeRow(index map[string]int, record []string, line int) (*message.Message, error) {
	cell := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var err error
	m := &message.Message{
		Name:           cell("name"),
		Phone:          cell("phone"),
		Body:           cell("message"),
		Status:         message.ParseStatus(cell("delivery_status")),
		ProviderID:     cell("message_id"),
		FollowupStatus: message.FollowupStatus(cell("followup_status")),
		FollowupBody:   cell("followup_message"),
	}

	if raw := cell("id"); raw != "" {
		if m.ID, err = uuid.Parse(raw); err != nil {
			return nil, fmt.Errorf("line %d: id: %w", line, err)
		}
	} else {
		// Rows written before ids existed get a stable derived id.
		m.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d|%s|%s", line, m.Phone, cell("sent_at"))))
	}

	if m.SentAt, err = parseTime(cell("sent_at")); err != nil {
		return nil, fmt.Errorf("line %d: sent_at: %w", line, err)
	}
	if m.LastUpdated, err = parseTime(cell("last_updated")); err != nil {
		return nil, fmt.Errorf("line %d: last_updated: %w", line, err)
	}
	if m.NextRetryAt, err = parseTimePtr(cell("next_retry_at")); err != nil {
		return nil, fmt.Errorf("line %d: next_retry_at: %w", line, err)
	}
	if m.FollowupSentAt, err = parseTimePtr(cell("followup_sent_at")); err != nil {
		return nil, fmt.Errorf("line %d: followup_sent_at: %w", line, err)
	}

	if raw := strings.TrimSpace(cell("retry_count")); raw != "" {
		if m.RetryCount, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("line %d: retry_count: %w", line, err)
		}
	}

	m.Replies = decodeReplies(cell("reply_history"))
	return m, nil
}

// decodeReplies tolerates empty or corrupt cells by treating them as no replies.
func decodeReplies(raw string) []message.Reply {
	replies := []message.Reply{}
	if strings.TrimSpace(raw) == "" {
		return replies
	}
	if err := json.Unmarshal([]byte(raw), &replies); err != nil || replies == nil {
		return []message.Reply{}
	}
	return replies
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(message.TimeLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(message.TimeLayout, raw, time.UTC)
}

func parseTimePtr(raw string) (*time.Time, error) {
	t, err := parseTime(raw)
	if err != nil || t.IsZero() {
		return nil, err
	}
	return &t, nil
}
