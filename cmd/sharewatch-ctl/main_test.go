package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sharewatch/sharewatch/pkg/probe"
	"github.com/sharewatch/sharewatch/pkg/snapcache"
)

// TestFileUsersResponseDecodes feeds the exact payload the service emits
// for a users-of-file lookup through the CLI's client path.
func TestFileUsersResponseDecodes(t *testing.T) {
	payload := snapcache.FileUsers{
		FilePath: `\\fileserver01\projects\report.xlsx`,
		Users: []probe.OpenFile{
			{FilePath: `\\fileserver01\projects\report.xlsx`, UserName: "alice",
				ClientName: "WS-ALICE", AccessMode: "Read/Write", OpenedAt: time.Now()},
			{FilePath: `D:\Shares\Projects\Report.xlsx`, UserName: "bob",
				ClientName: "WS-BOB", AccessMode: "Local"},
		},
		LastUpdated: time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC),
		UserCount:   2,
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	}))
	defer ts.Close()

	var result fileUsersResponse
	status, err := getJSON(ts.URL, "/files/users", nil, "", &result)
	if err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if result.UserCount != 2 || len(result.Users) != 2 {
		t.Fatalf("decoded %d users (count=%d), want 2: %+v", len(result.Users), result.UserCount, result)
	}
	if result.Users[0].UserName != "alice" || result.Users[0].ClientName != "WS-ALICE" {
		t.Errorf("users[0] = %+v", result.Users[0])
	}
	if result.Users[1].UserName != "bob" || result.Users[1].AccessMode != "Local" {
		t.Errorf("users[1] = %+v", result.Users[1])
	}
	if !result.LastUpdated.Equal(payload.LastUpdated) {
		t.Errorf("lastUpdated = %v", result.LastUpdated)
	}
}
