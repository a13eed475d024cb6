package shieldsync

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestSplitTrackingNumbers(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"TN-1", []string{"TN-1"}},
		{"TN-1|TN-2", []string{"TN-1", "TN-2"}},
		{"TN-1|TN-2|", []string{"TN-1", "TN-2"}},
		{" TN-1 | TN-2 ", []string{"TN-1", "TN-2"}},
		// Comma values written by older releases.
		{"TN-1,TN-2", []string{"TN-1", "TN-2"}},
		// Pipe wins when both delimiters appear.
		{"TN-1,x|TN-2", []string{"TN-1,x", "TN-2"}},
	}
	for _, tc := range cases {
		if got := SplitTrackingNumbers(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SplitTrackingNumbers(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestJoinTrackingNumbers(t *testing.T) {
	if got := JoinTrackingNumbers([]string{"TN-1", "TN-2"}); got != "TN-1|TN-2" {
		t.Fatalf("expected pipe-joined value, got %q", got)
	}
	if got := SplitTrackingNumbers(JoinTrackingNumbers([]string{"TN-1"})); !reflect.DeepEqual(got, []string{"TN-1"}) {
		t.Fatalf("single number must round-trip, got %v", got)
	}
}

func TestRemoteOrderCharge(t *testing.T) {
	var insured RemoteOrder
	if err := json.Unmarshal([]byte(`{"id":"ro_1","insured_status":"insured_selected","paid_to_insure":1.98}`), &insured); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := insured.Charge(); got != "1.98" {
		t.Fatalf("expected charge 1.98, got %q", got)
	}

	var declined RemoteOrder
	if err := json.Unmarshal([]byte(`{"id":"ro_2","insured_status":"insured_not_selected","paid_to_insure":1.98}`), &declined); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := declined.Charge(); got != "" {
		t.Fatalf("declined protection must carry no charge, got %q", got)
	}

	// Some responses quote the premium.
	var quoted RemoteOrder
	if err := json.Unmarshal([]byte(`{"id":"ro_3","insured_status":"insured_selected","paid_to_insure":"0.98"}`), &quoted); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := quoted.Charge(); got != "0.98" {
		t.Fatalf("expected charge 0.98, got %q", got)
	}
}
