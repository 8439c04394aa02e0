package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/synheart/vitalsynth/internal/models"
)

func sampleReadings() []models.Reading {
	at := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	return []models.Reading{
		{
			ID: "1782898200000-abcd1234", DeviceID: "esp32-1", ReceivedAt: at,
			HeartRate: 72, HeartRateAvg: 71, SpO2: 98.5, Temperature: 36.6,
			Red: 95000, IR: 101000, FingerDetected: true, HeartRateValid: true, SpO2Valid: true,
			LastGlucose: models.Float(86.5),
		},
		{
			ID: "1782898260000-00ff00ff", DeviceID: "esp32-2", ReceivedAt: at.Add(time.Minute),
			HeartRate: 64, HeartRateAvg: 64, SpO2: 97, Temperature: 36.2,
		},
	}
}

func TestNewEncoder(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"", "csv"},
		{"csv", "csv"},
		{"JSON", "json"},
		{"xlsx", "xlsx"},
		{"protobuf", "pb"},
	}

	for _, tt := range tests {
		enc, err := NewEncoder(tt.format)
		if err != nil {
			t.Fatalf("NewEncoder(%q): %v", tt.format, err)
		}
		if enc.Extension() != tt.ext {
			t.Errorf("NewEncoder(%q).Extension() = %q, want %q", tt.format, enc.Extension(), tt.ext)
		}
		if enc.ContentType() == "" {
			t.Errorf("NewEncoder(%q) has no content type", tt.format)
		}
	}

	if _, err := NewEncoder("parquet"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestCSVEncoder(t *testing.T) {
	data, err := NewCSVEncoder().Encode(sampleReadings())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("csv parse failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d rows, want 3", len(records))
	}
	if records[0][0] != "id" || records[0][7] != "glucose" {
		t.Errorf("unexpected header: %v", records[0])
	}

	first := records[1]
	if first[1] != "esp32-1" {
		t.Errorf("device_id = %q, want esp32-1", first[1])
	}
	if first[2] != "2026-07-01T09:30:00Z" {
		t.Errorf("received_at = %q", first[2])
	}
	if first[5] != "98.5" || first[7] != "86.5" {
		t.Errorf("spo2/glucose = %q/%q, want 98.5/86.5", first[5], first[7])
	}
	if first[10] != "true" {
		t.Errorf("finger_detected = %q, want true", first[10])
	}
	if records[2][7] != "" {
		t.Errorf("missing glucose should be empty, got %q", records[2][7])
	}
}

func TestCSVEncoder_Empty(t *testing.T) {
	data, err := NewCSVEncoder().Encode(nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	records, _ := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if len(records) != 1 {
		t.Errorf("got %d rows, want header only", len(records))
	}
}

func TestJSONEncoder(t *testing.T) {
	data, err := NewJSONEncoder().Encode(nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("empty export = %s, want []", data)
	}

	data, err = NewJSONEncoder().Encode(sampleReadings())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	var decoded []models.Reading
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(decoded) != 2 || decoded[0].ID != "1782898200000-abcd1234" {
		t.Errorf("unexpected decode: %+v", decoded)
	}
}

func TestXLSXEncoder(t *testing.T) {
	data, err := NewXLSXEncoder().Encode(sampleReadings())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook failed: %v", err)
	}
	defer f.Close()

	if name := f.GetSheetName(0); name != SheetName {
		t.Errorf("sheet name = %q, want %q", name, SheetName)
	}

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("get rows failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0][1] != "device_id" {
		t.Errorf("header[1] = %q, want device_id", rows[0][1])
	}
	if rows[1][1] != "esp32-1" {
		t.Errorf("row 1 device = %q, want esp32-1", rows[1][1])
	}
	if rows[2][1] != "esp32-2" {
		t.Errorf("row 2 device = %q, want esp32-2", rows[2][1])
	}
}

func TestProtobufEncoder(t *testing.T) {
	data, err := NewProtobufEncoder().Encode(sampleReadings())
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var list structpb.ListValue
	if err := proto.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if len(list.Values) != 2 {
		t.Fatalf("got %d values, want 2", len(list.Values))
	}

	first := list.Values[0].GetStructValue().GetFields()
	if first["device_id"].GetStringValue() != "esp32-1" {
		t.Errorf("device_id = %q, want esp32-1", first["device_id"].GetStringValue())
	}
	if first["heart_rate"].GetNumberValue() != 72 {
		t.Errorf("heart_rate = %v, want 72", first["heart_rate"].GetNumberValue())
	}
	if first["glucose"].GetNumberValue() != 86.5 {
		t.Errorf("glucose = %v, want 86.5", first["glucose"].GetNumberValue())
	}
	if !first["spo2_valid"].GetBoolValue() {
		t.Error("spo2_valid should be true")
	}

	second := list.Values[1].GetStructValue().GetFields()
	if _, ok := second["glucose"]; ok {
		t.Error("missing glucose should be omitted")
	}
}
