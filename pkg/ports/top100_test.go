package ports

import (
	"reflect"
	"testing"
)

func TestTop100_Sorted(t *testing.T) {
	for i := 1; i < len(Top100); i++ {
		if Top100[i] <= Top100[i-1] {
			t.Errorf("ports not sorted: %d at index %d <= %d at index %d", Top100[i], i, Top100[i-1], i-1)
		}
	}
}

func TestTop100_NoDuplicates(t *testing.T) {
	seen := make(map[uint16]bool)
	for _, p := range Top100 {
		if seen[p] {
			t.Errorf("duplicate port: %d", p)
		}
		seen[p] = true
	}
}

func TestTop100_Count(t *testing.T) {
	if len(Top100) != 100 {
		t.Errorf("Top100 has %d distinct ports, want 100", len(Top100))
	}
}

func TestTop100_HasCommonPorts(t *testing.T) {
	portSet := make(map[uint16]bool)
	for _, p := range Top100 {
		portSet[p] = true
	}
	for _, p := range []uint16{22, 80, 443, 3306, 5432, 8080, 8443} {
		if !portSet[p] {
			t.Errorf("missing common port: %d", p)
		}
	}
}

func TestDefault(t *testing.T) {
	if len(Default) != 20 {
		t.Errorf("default list has %d ports, want 20", len(Default))
	}
	for _, p := range Default {
		if p == 0 {
			t.Error("port 0 in default list")
		}
	}
}

func TestService(t *testing.T) {
	tests := map[uint16]string{22: "ssh", 443: "https", 3306: "mysql", 31337: "unknown"}
	for port, want := range tests {
		if got := Service(port); got != want {
			t.Errorf("Service(%d) = %q, want %q", port, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		spec    string
		want    []uint16
		wantErr bool
	}{
		{spec: "80,443", want: []uint16{80, 443}},
		{spec: " 443 , 80, 443", want: []uint16{443, 80}},
		{spec: "8000-8003", want: []uint16{8000, 8001, 8002, 8003}},
		{spec: "65534-65535", want: []uint16{65534, 65535}},
		{spec: "default", want: Default},
		{spec: "0", wantErr: true},
		{spec: "65536", wantErr: true},
		{spec: "90-80", wantErr: true},
		{spec: "http", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := Parse(tt.spec)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) err = %v, wantErr %v", tt.spec, err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}

	top, err := Parse("top100")
	if err != nil || len(top) != len(Top100) {
		t.Errorf("Parse(top100) = %d ports, err %v", len(top), err)
	}
}
