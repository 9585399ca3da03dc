package gateway

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/corda/ledgergate/errors"
	"github.com/corda/ledgergate/identity"
	"github.com/corda/ledgergate/vault"
)

// FlowIssueIOU is the flow started for POST /create-iou
const FlowIssueIOU = "iou.issue"

// handleMe returns the gateway node's own legal identity
func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"me": s.directory.Self().Name.String(),
	})
}

// handlePeers returns the parties this node can negotiate with. Self and the
// reserved infrastructure services never appear here.
func (s *Server) handlePeers(w http.ResponseWriter, _ *http.Request) {
	counterparties := s.directory.Counterparties()
	names := make([]string, 0, len(counterparties))
	for _, peer := range counterparties {
		names = append(names, peer.Name.String())
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"peers": names})
}

// handleIOUs returns every obligation version visible in the vault
func (s *Server) handleIOUs(w http.ResponseWriter, r *http.Request) {
	records, err := s.vault.IOUs(r.Context(), vault.NewFilter(vault.StatusAll))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleMyIOUs returns obligations where this node is the lender
func (s *Server) handleMyIOUs(w http.ResponseWriter, r *http.Request) {
	records, err := s.vault.IOUsByLender(r.Context(), s.directory.Self().Name.String())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

// handleCreateIOU issues a new obligation. Input is validated cheapest-first:
// the value before the name, the name before the directory lookup, and the
// node is only reached once everything local has passed.
func (s *Server) handleCreateIOU(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.writeError(w, r, errors.WrapTransient(errors.ErrRateLimited,
			"Server", "handleCreateIOU", "admission"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.writeText(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize))
			return
		}
		s.writeText(w, http.StatusBadRequest, "malformed form body")
		return
	}

	rawValue := r.FormValue("iouValue")
	value, err := strconv.Atoi(rawValue)
	if err != nil || value <= 0 {
		s.writeText(w, http.StatusBadRequest, "Query parameter 'iouValue' must be non-negative.")
		return
	}

	rawName := r.FormValue("partyName")
	if rawName == "" {
		s.writeText(w, http.StatusBadRequest, "Query parameter 'partyName' missing or has wrong format.")
		return
	}
	name, err := identity.ParseName(rawName)
	if err != nil {
		s.writeText(w, http.StatusBadRequest, "Query parameter 'partyName' missing or has wrong format.")
		return
	}

	party, err := s.directory.Resolve(name)
	if err != nil {
		s.writeText(w, http.StatusBadRequest,
			fmt.Sprintf("Party named %s cannot be found.", name.String()))
		return
	}

	handle, err := s.flows.Invoke(r.Context(), FlowIssueIOU,
		[]string{strconv.Itoa(value), party.Name.String()})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("obligation issuance submitted",
		"invocation_id", handle.ID(),
		"value", value,
		"borrower", party.Name.String())

	result, err := s.flows.Await(r.Context(), handle)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeText(w, http.StatusCreated,
		fmt.Sprintf("Transaction id %s committed to ledger.", result.TxID))
}
