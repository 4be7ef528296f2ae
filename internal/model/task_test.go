package model

import (
	"testing"
	"time"
)

func TestLocalTask_GetETAString(t *testing.T) {
	tests := []struct {
		etaSec   float64
		expected string
	}{
		{-1, "—"},
		{0, "—"},
		{30, "00:30"},
		{90, "01:30"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{7323.7, "02:02:03"},
	}

	for _, test := range tests {
		task := &LocalTask{TaskUpdate: TaskUpdate{ETASeconds: test.etaSec}}
		result := task.GetETAString()
		if result != test.expected {
			t.Errorf("GetETAString() with ETASeconds=%v = %s, expected %s", test.etaSec, result, test.expected)
		}
	}
}

func TestLocalTask_GetSpeedString(t *testing.T) {
	tests := []struct {
		speed    float64
		expected string
	}{
		{0, "—"},
		{512, "512B/s"},
		{2048, "2.0KB/s"},
		{1.5 * 1024 * 1024, "1.5MB/s"},
	}

	for _, test := range tests {
		task := &LocalTask{TaskUpdate: TaskUpdate{DownloadSpeed: test.speed}}
		result := task.GetSpeedString()
		if result != test.expected {
			t.Errorf("GetSpeedString() with speed=%v = %s, expected %s", test.speed, result, test.expected)
		}
	}
}

func TestLocalTask_GetDisplayTitle(t *testing.T) {
	tests := []struct {
		title    string
		url      string
		id       string
		expected string
	}{
		{"Video Title", "https://youtube.com/watch?v=123", "t1", "Video Title"},
		{"", "https://youtube.com/watch?v=123", "t1", "https://youtube.com/watch?v=123"},
		{"https://youtube.com/watch?v=456", "", "t2", "https://youtube.com/watch?v=456"},
		{"", "", "t3", "t3"},
	}

	for _, test := range tests {
		task := &LocalTask{TaskUpdate: TaskUpdate{TaskID: test.id, Title: test.title, URL: test.url}}
		result := task.GetDisplayTitle()
		if result != test.expected {
			t.Errorf("GetDisplayTitle() with title='%s', url='%s' = '%s', expected '%s'",
				test.title, test.url, result, test.expected)
		}
	}
}

func TestLocalTask_SortTime(t *testing.T) {
	added := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	updated := added.Add(time.Minute)
	retired := added.Add(2 * time.Minute)

	task := &LocalTask{AddedAt: added}
	if !task.SortTime().Equal(added) {
		t.Errorf("Expected SortTime to fall back to AddedAt, got %v", task.SortTime())
	}

	task.LastUpdated = updated
	if !task.SortTime().Equal(updated) {
		t.Errorf("Expected SortTime to be LastUpdated, got %v", task.SortTime())
	}

	task.RetiredAt = retired
	if !task.SortTime().Equal(retired) {
		t.Errorf("Expected SortTime to be RetiredAt, got %v", task.SortTime())
	}
}
