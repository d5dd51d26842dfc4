package cqrs

// ---------- User queries ----------

// GetUserQuery fetches a single user. Non-admin callers may only read themselves.
type GetUserQuery struct {
	UserID           string
	RequestingUserID string
	RequestingAdmin  bool
}

// ---------- Ledger queries ----------

// GetBalanceQuery fetches the balance view of a user.
type GetBalanceQuery struct {
	UserID string
}

// ListTransactionsQuery fetches a user's transactions, newest first.
type ListTransactionsQuery struct {
	UserID string
}

// GetTransactionQuery fetches a single transaction for the admin back-office.
type GetTransactionQuery struct {
	TransactionID string
}

type ListNotificationsQuery struct {
	UserID     string
	UnreadOnly bool
}

type ListInvestmentsQuery struct {
	UserID string
}

// GetLoanRangeQuery resolves the loan window applicable to a user.
type GetLoanRangeQuery struct {
	UserID string
}
