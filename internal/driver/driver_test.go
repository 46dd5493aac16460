package driver

import (
	"context"
	"errors"
	"sort"
	"testing"
)

func TestParseVolumes(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []string
		wantErr bool
	}{
		{name: "empty", spec: "", want: nil},
		{name: "whitespace", spec: "  \n", want: nil},
		{name: "single bind", spec: `{"/data":"/srv/data"}`, want: []string{"/data:/srv/data"}},
		{
			name: "multiple binds",
			spec: `{"/a":"/x","/b":"/y"}`,
			want: []string{"/a:/x", "/b:/y"},
		},
		{name: "not json", spec: "/data:/srv/data", wantErr: true},
		{name: "wrong shape", spec: `["/data"]`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVolumes(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseVolumes(%q) accepted", tt.spec)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseVolumes: %v", err)
			}
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("bind[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFake_Lifecycle(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	id, err := f.Create(ctx, Spec{Image: "example/x", Port: 1337})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	alive, err := f.IsRunning(ctx, id)
	if err != nil || !alive {
		t.Errorf("running = %v, %v; want true", alive, err)
	}

	port, err := f.Port(ctx, id)
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	if port != 31000 {
		t.Errorf("port = %d, want 31000", port)
	}

	if err := f.Kill(ctx, id); err != nil {
		t.Fatalf("kill: %v", err)
	}
	alive, err = f.IsRunning(ctx, id)
	if err != nil || alive {
		t.Errorf("running after kill = %v, %v; want false", alive, err)
	}
}

func TestFake_InjectedErrors(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	f.CreateErr = errors.New("boom")
	if _, err := f.Create(ctx, Spec{}); err == nil {
		t.Error("create ignored injected error")
	}
	f.CreateErr = nil

	id, err := f.Create(ctx, Spec{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.MarkDead(id)
	alive, err := f.IsRunning(ctx, id)
	if err != nil || alive {
		t.Errorf("running after MarkDead = %v, %v; want false", alive, err)
	}
	if !f.Exists(id) {
		t.Error("MarkDead removed the instance entirely")
	}
}
