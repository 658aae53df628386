package cluster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// joinRequest is the payload posted to a leader's join endpoint by a node
// wanting to become a Raft voter. This is the only network call this
// package makes outside of raft's own transport, and it carries no
// activity or lease state — just enough to call AddVoter.
type joinRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// JoinHandler returns an http.HandlerFunc that, when mounted on the
// current leader's admin server, adds the requesting node as a Raft
// voter. Mirrors the demo admin surface cmd/wardenctl serves alongside
// /health and /metrics.
func (n *Node) JoinHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := n.AddVoter(req.ID, req.Address); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// postJoinRequest POSTs a join request to the given leader admin address.
// The caller is responsible for first having started this node's own Raft
// instance so it is listening before the leader tries to contact it.
func postJoinRequest(leaderJoinAddr, id, address string) error {
	body, err := json.Marshal(joinRequest{ID: id, Address: address})
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(leaderJoinAddr, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("join request rejected: status %d", resp.StatusCode)
	}
	return nil
}
