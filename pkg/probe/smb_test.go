package probe

import (
	"context"
	"errors"
	"testing"
)

func testResolver() *HostnameResolver {
	r := NewHostnameResolver()
	r.lookupAddr = func(ctx context.Context, addr string) ([]string, error) {
		if addr == "10.0.0.5" {
			return []string{"ws-alice.corp.example.com."}, nil
		}
		return nil, errors.New("nxdomain")
	}
	return r
}

func TestSMBProbeParsesArray(t *testing.T) {
	runner := &fakeRunner{
		output: map[string][]byte{
			"powershell.exe": []byte(`[` +
				`{"FileId":101,"SessionId":9,"Path":"D:\\Shares\\Projects\\report.xlsx","ClientComputerName":"10.0.0.5","ClientUserName":"alice"},` +
				`{"FileId":102,"SessionId":10,"Path":"D:\\Shares\\Projects\\plan.docx","ClientComputerName":"WS-BOB","ClientUserName":"bob"},` +
				`{"FileId":103,"SessionId":11,"Path":"","ClientComputerName":"WS-X","ClientUserName":"carol"}` +
				`]`),
		},
		errs: map[string]error{"net": errors.New("not available")},
	}

	p := NewSMBProbe(runner, "powershell.exe", testResolver())
	records, err := p.ListOpenFiles(context.Background())
	if err != nil {
		t.Fatalf("ListOpenFiles: %v", err)
	}
	// The empty-path row is dropped.
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	if records[0].FilePath != `D:\Shares\Projects\report.xlsx` || records[0].UserName != "alice" {
		t.Errorf("record[0] = %+v", records[0])
	}
	if records[0].ClientName != "WS-ALICE" {
		t.Errorf("IP should reverse-resolve to short host name, got %q", records[0].ClientName)
	}
	if records[0].FileID != 101 || records[0].SessionID != 9 {
		t.Errorf("record[0] identifiers = %+v", records[0])
	}
	if records[1].ClientName != "WS-BOB" {
		t.Errorf("plain host name should pass through, got %q", records[1].ClientName)
	}
}

func TestSMBProbeParsesSingleObject(t *testing.T) {
	runner := &fakeRunner{
		output: map[string][]byte{
			"powershell.exe": []byte(`{"FileId":7,"SessionId":1,"Path":"E:\\Public\\x.csv","ClientComputerName":"WS-1","ClientUserName":"dave"}`),
		},
		errs: map[string]error{"net": errors.New("not available")},
	}

	p := NewSMBProbe(runner, "powershell.exe", testResolver())
	records, err := p.ListOpenFiles(context.Background())
	if err != nil {
		t.Fatalf("ListOpenFiles: %v", err)
	}
	if len(records) != 1 || records[0].UserName != "dave" {
		t.Errorf("records = %+v", records)
	}
}

func TestSMBProbeEmptyOutput(t *testing.T) {
	runner := &fakeRunner{
		output: map[string][]byte{"powershell.exe": []byte("  \n")},
		errs:   map[string]error{"net": errors.New("not available")},
	}
	p := NewSMBProbe(runner, "powershell.exe", testResolver())
	records, err := p.ListOpenFiles(context.Background())
	if err != nil {
		t.Fatalf("ListOpenFiles: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("no open files should yield no records, got %+v", records)
	}
}

func TestSMBProbeMalformedJSON(t *testing.T) {
	runner := &fakeRunner{
		output: map[string][]byte{"powershell.exe": []byte("{broken")},
	}
	p := NewSMBProbe(runner, "powershell.exe", testResolver())
	if _, err := p.ListOpenFiles(context.Background()); err == nil {
		t.Error("malformed JSON should fail the probe")
	}
}

func TestParseNetFile(t *testing.T) {
	out := []byte("ID         Path                          User name            # Locks\r\n" +
		"-------------------------------------------------------------------------------\r\n" +
		"21         D:\\Data\\Quarterly Report.xlsx alice                0\r\n" +
		"34         E:\\Public\\notes.txt           bob                  2\r\n" +
		"not-a-row  something                     x                    y\r\n" +
		"The command completed successfully.\r\n")

	records := parseNetFile(out)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	// Paths with spaces are reassembled from the middle fields.
	if records[0].FilePath != `D:\Data\Quarterly Report.xlsx` || records[0].UserName != "alice" {
		t.Errorf("record[0] = %+v", records[0])
	}
	if records[0].SessionID != 21 {
		t.Errorf("record[0].SessionID = %d, want 21", records[0].SessionID)
	}
	if records[1].UserName != "bob" {
		t.Errorf("record[1] = %+v", records[1])
	}
}

func TestMergeNetFileKeepsPrimary(t *testing.T) {
	runner := &fakeRunner{
		output: map[string][]byte{
			"powershell.exe": []byte(`{"FileId":500,"SessionId":5,"Path":"D:\\Data\\f.txt","ClientComputerName":"WS-1","ClientUserName":"alice"}`),
			"net": []byte("ID  Path  User  Locks\n" +
				"9          D:\\Data\\f.txt                 ALICE                0\n" +
				"10         D:\\Data\\other.txt             bob                  0\n"),
		},
	}

	p := NewSMBProbe(runner, "powershell.exe", testResolver())
	records, err := p.ListOpenFiles(context.Background())
	if err != nil {
		t.Fatalf("ListOpenFiles: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(records), records)
	}
	// The primary record survives the case-insensitive collision and keeps
	// its identifiers.
	if records[0].FileID != 500 || records[0].SessionID != 5 {
		t.Errorf("primary record lost to supplement: %+v", records[0])
	}
	if records[1].UserName != "bob" {
		t.Errorf("supplement-only record missing: %+v", records)
	}
}
