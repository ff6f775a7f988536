package testutils

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestMockSBSLine(t *testing.T) {
	line := MockSBSLine(3, "A1B2C3", map[int]string{
		SBSFieldLat: "37.600",
		SBSFieldLon: "-122.340",
	})

	parts := strings.Split(line, ",")
	if len(parts) != 22 {
		t.Fatalf("Expected 22 fields, got %d", len(parts))
	}
	if parts[0] != "MSG" {
		t.Errorf("First part should be 'MSG', got '%s'", parts[0])
	}
	if parts[1] != "3" {
		t.Errorf("Expected transmission type 3, got %s", parts[1])
	}
	if parts[4] != "A1B2C3" {
		t.Errorf("Expected hex ident at index 4, got '%s'", parts[4])
	}
	if parts[SBSFieldLat] != "37.600" || parts[SBSFieldLon] != "-122.340" {
		t.Errorf("Position fields not set: %v", parts[SBSFieldLat:SBSFieldLon+1])
	}
	if parts[SBSFieldCallsign] != "" {
		t.Errorf("Unset fields should be empty, got '%s'", parts[SBSFieldCallsign])
	}
}

func TestMockSBSLine_DifferentTypes(t *testing.T) {
	for _, tt := range []int{1, 3, 4, 5, 7, 8} {
		t.Run(fmt.Sprintf("Type%d", tt), func(t *testing.T) {
			parts := strings.Split(MockSBSLine(tt, "ABC123", nil), ",")
			if parts[1] != fmt.Sprint(tt) {
				t.Errorf("Expected transmission type %d, got %s", tt, parts[1])
			}
		})
	}
}

func TestMockPositionReport(t *testing.T) {
	r := MockPositionReport("a1b2c3", "UAL123", 37.6, -122.34)
	if err := r.Validate(); err != nil {
		t.Errorf("Mock report should be valid: %v", err)
	}
}

func TestWaitForCondition_Success(t *testing.T) {
	err := WaitForCondition(func() bool { return true }, 1*time.Second)
	if err != nil {
		t.Errorf("WaitForCondition() should succeed, got error: %v", err)
	}
}

func TestWaitForCondition_Timeout(t *testing.T) {
	err := WaitForCondition(func() bool { return false }, 50*time.Millisecond)
	if err == nil {
		t.Fatal("WaitForCondition() should timeout")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Expected timeout error, got: %v", err)
	}
}

func TestWaitForCondition_ConditionBecomesTrue(t *testing.T) {
	counter := 0
	condition := func() bool {
		counter++
		return counter >= 3
	}

	if err := WaitForCondition(condition, 1*time.Second); err != nil {
		t.Errorf("WaitForCondition() should succeed, got error: %v", err)
	}
	if counter < 3 {
		t.Errorf("Condition should have been called at least 3 times, got %d", counter)
	}
}
