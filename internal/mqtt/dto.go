package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/vitalcam/vitalcam/internal/monitor"
)

// Reading types and units. These strings are part of the published payload
// contract and are matched by downstream dashboards.
const (
	TypeHeartRate = "heart_rate"
	TypeStress    = "stress_index"
	TypeSpO2      = "spo2"
	TypeCombined  = "biometrics_combined"

	UnitBPM     = "BPM"
	UnitPercent = "%"

	// missingValue stands in for a vital with no readings in the window.
	missingValue = "-"
)

// Topic suffixes under the configured prefix.
const (
	TopicHeartRate = "heart_rate"
	TopicStress    = "stress"
	TopicSpO2      = "spo2"
	TopicCombined  = "combined"
)

// ReadingDTO is the payload of a single-vital topic.
type ReadingDTO struct {
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Data      float64 `json:"data"`
	Unit      string  `json:"unit"`
	DeviceID  string  `json:"device_id"`
}

// CombinedDataDTO carries every vital; missing ones are "-".
type CombinedDataDTO struct {
	HeartRate any `json:"heart_rate"`
	Stress    any `json:"stress_index"`
	SpO2      any `json:"spo2"`
}

// CombinedUnitsDTO names the unit of each combined field.
type CombinedUnitsDTO struct {
	HeartRate string `json:"heart_rate"`
	Stress    string `json:"stress_index"`
	SpO2      string `json:"spo2"`
}

// CombinedDTO is the payload of the combined topic.
type CombinedDTO struct {
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	Data      CombinedDataDTO  `json:"data"`
	Units     CombinedUnitsDTO `json:"units"`
	DeviceID  string           `json:"device_id"`
}

// Message is one topic and its serialized payload.
type Message struct {
	Topic   string
	Payload string
}

// BuildMessages renders a drained window. Single-vital topics are only
// produced for vitals with readings; the combined topic is always produced.
func BuildMessages(prefix, deviceID string, avg monitor.Averages) ([]Message, error) {
	ts := formatTimestamp(avg.At)
	var out []Message

	singles := []struct {
		avg   monitor.Average
		topic string
		typ   string
		unit  string
	}{
		{avg.HeartRate, TopicHeartRate, TypeHeartRate, UnitBPM},
		{avg.Stress, TopicStress, TypeStress, UnitPercent},
		{avg.SpO2, TopicSpO2, TypeSpO2, UnitPercent},
	}
	for _, s := range singles {
		if !s.avg.Valid() {
			continue
		}
		data, err := json.Marshal(ReadingDTO{
			Type:      s.typ,
			Timestamp: ts,
			Data:      round1(s.avg.Value),
			Unit:      s.unit,
			DeviceID:  deviceID,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, Message{Topic: prefix + "/" + s.topic, Payload: string(data)})
	}

	data, err := json.Marshal(CombinedDTO{
		Type:      TypeCombined,
		Timestamp: ts,
		Data: CombinedDataDTO{
			HeartRate: valueOrMissing(avg.HeartRate),
			Stress:    valueOrMissing(avg.Stress),
			SpO2:      valueOrMissing(avg.SpO2),
		},
		Units:    CombinedUnitsDTO{HeartRate: UnitBPM, Stress: UnitPercent, SpO2: UnitPercent},
		DeviceID: deviceID,
	})
	if err != nil {
		return nil, err
	}
	return append(out, Message{Topic: prefix + "/" + TopicCombined, Payload: string(data)}), nil
}

func valueOrMissing(a monitor.Average) any {
	if !a.Valid() {
		return missingValue
	}
	return round1(a.Value)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// formatTimestamp renders local time with microseconds and no zone.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.000000")
}
