package http

import (
	"net/http"

	"dompet/internal/ledger"
)

// Every transaction mutation also moves a wallet balance.
const transactionChange = ledger.ChangeTransactions | ledger.ChangeWallets

func (s *Server) handleTransactionsPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "transactions.html", "Transactions", "transactions")
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	tx, err := parseTransaction(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	s.mutate(w, r, transactionChange, "transactions-list", "Transaction recorded",
		ledger.CreateTransaction{Tx: tx})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	p := parseForm(w, r)
	if p == nil {
		return
	}
	tx, err := parseTransaction(p)
	if err != nil {
		s.rejectInput(w, r, err)
		return
	}
	tx.ID = r.PathValue("id")
	s.mutate(w, r, transactionChange, "transactions-list", "Transaction updated",
		ledger.UpdateTransaction{Tx: tx})
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, transactionChange, "transactions-list", "Transaction deleted",
		ledger.DeleteTransaction{ID: r.PathValue("id")})
}
