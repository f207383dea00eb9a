package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tos-network/electsim/account"
	"github.com/tos-network/electsim/chainconfig"
	"github.com/tos-network/electsim/runtimeconfig"
	"github.com/tos-network/electsim/scalecodec"
	"github.com/tos-network/electsim/service"
	"github.com/tos-network/electsim/storage"
)

func init() {
	runtimeconfig.Set(runtimeconfig.Constants{
		Pages:                  1,
		MaxWinnersPerPage:      100,
		MaxBackersPerWinner:    100,
		VoterSnapshotPerBlock:  10,
		TargetSnapshotPerBlock: 10,
		MaxLength:              22500,
		MaxVotesPerVoter:       16,
	})
}

func id(b byte) account.ID {
	var a account.ID
	a[31] = b
	return a
}

func encodeU32(v uint32) []byte {
	e := scalecodec.NewEncoder()
	e.PutUint32(v)
	return e.Bytes()
}

func encodeValidatorPrefs(commissionPPB uint32, blocked bool) []byte {
	e := scalecodec.NewEncoder()
	e.PutUint32(commissionPPB)
	if blocked {
		e.PutRaw([]byte{1})
	} else {
		e.PutRaw([]byte{0})
	}
	return e.Bytes()
}

func encodeVoterPage(who account.ID, stake uint64, target account.ID) []byte {
	e := scalecodec.NewEncoder()
	e.PutCompactUint(1)
	e.PutRaw(who[:])
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(stake >> (8 * i))
	}
	e.PutRaw(buf[:])
	e.PutCompactUint(1)
	e.PutRaw(target[:])
	return e.Bytes()
}

func encodeTargetPage(targets ...account.ID) []byte {
	e := scalecodec.NewEncoder()
	e.PutCompactUint(uint64(len(targets)))
	for _, t := range targets {
		e.PutRaw(t[:])
	}
	return e.Bytes()
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	backend := storage.NewMockBackend()
	round := uint32(1)
	target := id(1)
	voter := id(2)

	backend.Storage[string(storage.ValueKey("MultiBlockElection", "CurrentPhase"))] = []byte{5} // Done
	backend.Storage[string(storage.ValueKey("MultiBlockElection", "Round"))] = encodeU32(round)
	backend.Storage[string(storage.MapKey("MultiBlockElection", "DesiredTargets", encodeU32(round)))] = encodeU32(1)
	backend.Storage[string(storage.ValueKey("System", "Number"))] = encodeU32(1000)
	backend.Storage[string(storage.DoubleMapKey("MultiBlockElection", "PagedVoterSnapshot", encodeU32(round), encodeU32(0)))] = encodeVoterPage(voter, 500, target)
	backend.Storage[string(storage.DoubleMapKey("MultiBlockElection", "PagedTargetSnapshot", encodeU32(round), encodeU32(0)))] = encodeTargetPage(target)
	backend.Storage[string(storage.MapKey("Staking", "Validators", target[:]))] = encodeValidatorPrefs(0, false)
	backend.BlockHash = []byte{0xaa}

	svc := service.New(backend, chainconfig.ProfileFor(chainconfig.Substrate))
	return httptest.NewServer(NewServer(svc))
}

func TestHandleSimulateReturnsResult(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/simulate", "application/json", bytes.NewReader([]byte(`{"algorithm":"seq-phragmen"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header to be set", requestIDHeader)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Error != "" {
		t.Fatalf("unexpected error: %s", env.Error)
	}
	if env.Result == nil {
		t.Fatalf("expected a result")
	}
}

func TestHandleSimulateRejectsBadAlgorithm(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/simulate", "application/json", bytes.NewReader([]byte(`{"algorithm":"not-a-real-algorithm"}`)))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleSnapshotReturnsResult(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatal(err)
	}
	if env.Result == nil {
		t.Fatalf("expected a result")
	}
}
