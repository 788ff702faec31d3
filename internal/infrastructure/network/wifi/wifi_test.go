package wifi

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls   [][]string
	outputs map[string][]byte
	errs    map[string]error
}

func (r *recorder) run(_ context.Context, name string, args ...string) ([]byte, error) {
	call := append([]string{name}, args...)
	r.calls = append(r.calls, call)
	key := strings.Join(args[:3], " ")
	return r.outputs[key], r.errs[key]
}

func TestAssociateDisabledWithoutSSID(t *testing.T) {
	rec := &recorder{}
	a := New(Config{}, WithRunner(rec.run))

	require.NoError(t, a.Associate(context.Background()))
	assert.False(t, a.Enabled())
	assert.Empty(t, rec.calls)
}

func TestAssociateSkipsWhenAlreadyActive(t *testing.T) {
	rec := &recorder{outputs: map[string][]byte{
		"-t -f ACTIVE,SSID": []byte("no:Neighbours\nyes:Brew\\:House\n"),
	}}
	a := New(Config{SSID: "Brew:House"}, WithRunner(rec.run))

	require.NoError(t, a.Associate(context.Background()))
	assert.Len(t, rec.calls, 1)
}

func TestAssociateConnects(t *testing.T) {
	rec := &recorder{outputs: map[string][]byte{
		"-t -f ACTIVE,SSID": []byte("no:Brewery\n"),
	}}
	a := New(Config{SSID: "Brewery", Password: "hunter2", Interface: "wlan0"}, WithRunner(rec.run))

	require.NoError(t, a.Associate(context.Background()))
	require.Len(t, rec.calls, 2)
	assert.Equal(t,
		[]string{"nmcli", "device", "wifi", "connect", "Brewery", "password", "hunter2", "ifname", "wlan0"},
		rec.calls[1])
}

func TestAssociateErrorRedactsPassword(t *testing.T) {
	rec := &recorder{
		outputs: map[string][]byte{"device wifi connect": []byte("Error: Secrets were required")},
		errs:    map[string]error{"device wifi connect": errors.New("exit status 4")},
	}
	a := New(Config{SSID: "Brewery", Password: "hunter2"}, WithRunner(rec.run))

	err := a.Associate(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "Secrets were required")
}

func TestActiveReportsRunnerFailure(t *testing.T) {
	rec := &recorder{errs: map[string]error{"-t -f ACTIVE,SSID": errors.New("nmcli not found")}}
	a := New(Config{SSID: "Brewery"}, WithRunner(rec.run))

	_, err := a.Active(context.Background())
	assert.Error(t, err)
}
