package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// snowflake decodes a Discord ID written either as a JSON string or as a JSON
// number. Older record files store IDs as numbers.
type snowflake string

func (s *snowflake) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = snowflake(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("snowflake: %w", err)
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("snowflake: %q is not an unsigned integer", n.String())
	}
	*s = snowflake(n.String())
	return nil
}

// recordJSON is the on-disk shape of a Record.
type recordJSON struct {
	MessageID             snowflake `json:"message_id"`
	ChannelID             snowflake `json:"channel_id"`
	TicketChannelID       snowflake `json:"ticket_channel_id,omitempty"`
	NotificationID        snowflake `json:"notification_id,omitempty"`
	NotificationChannelID snowflake `json:"notification_channel_id,omitempty"`
	Label                 string    `json:"label,omitempty"`
	Style                 string    `json:"style,omitempty"`
	ChannelPrefix         string    `json:"channel_prefix,omitempty"`
}

func encodeRecords(recs []Record) ([]byte, error) {
	out := make([]recordJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, recordJSON{
			MessageID:             snowflake(r.MessageID),
			ChannelID:             snowflake(r.ChannelID),
			TicketChannelID:       snowflake(r.TicketChannelID),
			NotificationID:        snowflake(r.NotificationID),
			NotificationChannelID: snowflake(r.NotificationChannelID),
			Label:                 r.Label,
			Style:                 r.Style,
			ChannelPrefix:         r.ChannelPrefix,
		})
	}
	return json.Marshal(out)
}

func decodeRecords(kind Kind, data []byte) ([]Record, error) {
	var in []recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(in))
	for i, r := range in {
		if r.MessageID == "" || r.ChannelID == "" {
			return nil, fmt.Errorf("record %d: message_id and channel_id are required", i)
		}
		recs = append(recs, Record{
			Kind:                  kind,
			MessageID:             string(r.MessageID),
			ChannelID:             string(r.ChannelID),
			TicketChannelID:       string(r.TicketChannelID),
			NotificationID:        string(r.NotificationID),
			NotificationChannelID: string(r.NotificationChannelID),
			Label:                 r.Label,
			Style:                 r.Style,
			ChannelPrefix:         r.ChannelPrefix,
		})
	}
	return recs, nil
}
