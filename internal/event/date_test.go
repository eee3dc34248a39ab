package event

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    time.Time
		wantErr bool
	}{
		{
			name: "RFC3339 UTC",
			text: "2024-01-01T09:00:00Z",
			want: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "JavaScript toJSON with milliseconds",
			text: "2024-01-01T09:00:00.000Z",
			want: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "RFC3339 with offset",
			text: "2024-01-01T18:00:00+09:00",
			want: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "RFC3339 nano",
			text: "2024-06-30T23:59:59.123456789Z",
			want: time.Date(2024, 6, 30, 23, 59, 59, 123456789, time.UTC),
		},
		{
			name: "datetime-local input",
			text: "2024-01-01T09:00",
			want: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "date only",
			text: "2024-02-29",
			want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "surrounding whitespace",
			text: "  2024-02-29 ",
			want: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{name: "empty", text: "", wantErr: true},
		{name: "garbage", text: "next tuesday", wantErr: true},
		{name: "invalid day", text: "2023-02-29", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.text, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.text, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseDate_Location(t *testing.T) {
	loc := time.FixedZone("KST", 9*60*60)
	got, err := ParseDate("2024-01-01T09:00", loc)
	if err != nil {
		t.Fatalf("ParseDate() error = %v", err)
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseDate() = %v, want %v", got, want)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	if !SameDay(a, a.Add(-22*time.Hour)) {
		t.Error("expected same day")
	}
	if SameDay(a, a.Add(2*time.Hour)) {
		t.Error("expected different days")
	}
}
