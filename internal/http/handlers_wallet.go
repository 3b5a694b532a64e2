package http

import (
	"net/http"

	"dompet/internal/ledger"
)

func (s *Server) handleWalletsPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "wallets.html", "Wallets", "wallets")
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	wallet, err := parseWallet(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	s.mutate(w, r, ledger.ChangeWallets, "wallets-list", "Wallet created",
		ledger.CreateWallet{Wallet: wallet})
}

// handleUpdateWallet renames a wallet. A balance sent with the form is
// ignored.
func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	wallet, err := parseWallet(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	wallet.ID = r.PathValue("id")
	s.mutate(w, r, ledger.ChangeWallets, "wallets-list", "Wallet updated",
		ledger.UpdateWallet{Wallet: wallet})
}

// handleDeleteWallet removes the wallet together with its transactions.
func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, ledger.ChangeWallets|ledger.ChangeTransactions, "wallets-list", "Wallet deleted",
		ledger.DeleteWallet{ID: r.PathValue("id")})
}
