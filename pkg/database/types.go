// Copyright 2025 ZeroXBridge
//
// Journal Types for the Bridge Sequencer
// These types map directly to the PostgreSQL schema defined in migrations/001_initial_schema.sql

package database

import (
	"database/sql"
	"encoding/json"
	"time"
)

// ============================================================================
// DIRECTION
// ============================================================================

// Direction distinguishes the two bridge flows and their accumulators.
type Direction string

const (
	// DirectionDeposit is L1 -> L2 (Keccak accumulator).
	DirectionDeposit Direction = "deposit"
	// DirectionWithdrawal is L2 -> L1 (Poseidon accumulator).
	DirectionWithdrawal Direction = "withdrawal"
)

// ============================================================================
// ENTITY STATUS
// ============================================================================

// Status values for deposits and withdrawals. Stored lowercase; an entity
// reaches exactly one terminal status and the column is write-once after
// that.
const (
	StatusPending              = "pending"
	StatusPendingTreeInclusion = "pending_tree_inclusion"
	StatusTreeIncluded         = "tree_included"
	StatusProofRequested       = "proof_requested"
	StatusProofReady           = "proof_ready"
	StatusReadyForRelay        = "ready_for_relay"
	StatusReadyToClaim         = "ready_to_claim"
	StatusClaimed              = "claimed"
	StatusRelayed              = "relayed"
	StatusFailed               = "failed"
)

// IsTerminalStatus reports whether a status ends the entity lifecycle.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusReadyToClaim, StatusClaimed, StatusRelayed, StatusFailed:
		return true
	}
	return false
}

// ============================================================================
// DEPOSITS / WITHDRAWALS
// ============================================================================

// Deposit is an L1->L2 transfer tracked from DepositEvent to claim.
// Maps to: deposits table
type Deposit struct {
	ID             int64         `db:"id" json:"id"`
	UserAddress    string        `db:"user_address" json:"user_address"`
	Amount         int64         `db:"amount" json:"amount"` // USD value
	CommitmentHash string        `db:"commitment_hash" json:"commitment_hash"`
	LeafIndex      sql.NullInt64 `db:"leaf_index" json:"leaf_index,omitempty"`
	ProofJobID     sql.NullInt64 `db:"proof_job_id" json:"proof_job_id,omitempty"`
	Status         string        `db:"status" json:"status"`
	RetryCount     int           `db:"retry_count" json:"retry_count"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// Withdrawal is an L2->L1 transfer tracked from BurnEvent to relay.
// Maps to: withdrawals table
type Withdrawal struct {
	ID             int64          `db:"id" json:"id"`
	StarkPubKey    string         `db:"stark_pub_key" json:"stark_pub_key"`
	Amount         int64          `db:"amount" json:"amount"`
	CommitmentHash string         `db:"commitment_hash" json:"commitment_hash"`
	L1Token        string         `db:"l1_token" json:"l1_token"`
	L2TxID         sql.NullString `db:"l2_tx_id" json:"l2_tx_id,omitempty"`
	LeafIndex      sql.NullInt64  `db:"leaf_index" json:"leaf_index,omitempty"`
	Status         string         `db:"status" json:"status"`
	RetryCount     int            `db:"retry_count" json:"retry_count"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// WithdrawalProof carries the verified proof blob the L1 relayer replays.
// Maps to: withdrawal_proofs table
type WithdrawalProof struct {
	ID           int64     `db:"id" json:"id"`
	WithdrawalID int64     `db:"withdrawal_id" json:"withdrawal_id"`
	ProofParams  []byte    `db:"proof_params" json:"proof_params"`
	ProofData    []byte    `db:"proof_data" json:"proof_data"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// WithdrawalWithProof is the joined row the L1 relayer consumes.
type WithdrawalWithProof struct {
	WithdrawalID   int64
	StarkPubKey    string
	Amount         int64
	L2TxID         string
	CommitmentHash string
	ProofParams    []byte
	ProofData      []byte
}

// ============================================================================
// ACCUMULATOR EVENTS
// ============================================================================

// AccumulatorEvent archives one on-chain HashAppended emission verbatim so
// the contract's view of the accumulator can be reconstructed at any block.
// Maps to: deposit_hashes / withdrawal_hashes tables
type AccumulatorEvent struct {
	ID             int64     `db:"id" json:"id"`
	Direction      Direction `db:"-" json:"direction"`
	LeafIndex      int64     `db:"leaf_index" json:"leaf_index"`
	CommitmentHash string    `db:"commitment_hash" json:"commitment_hash"`
	RootHash       string    `db:"root_hash" json:"root_hash"`
	ElementsCount  int64     `db:"elements_count" json:"elements_count"`
	BlockNumber    int64     `db:"block_number" json:"block_number"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ============================================================================
// PROOF JOBS
// ============================================================================

// Proof job status and stage strings. Stages mirror the staged submission
// protocol: processing, initial_submitted, stepK_submitted, final_submitted,
// completed.
const (
	ProofJobStatusProcessing = "processing"
	ProofJobStatusCompleted  = "completed"
	ProofJobStatusFailed     = "failed"

	StageProcessing       = "processing"
	StageInitialSubmitted = "initial_submitted"
	StageFinalSubmitted   = "final_submitted"
	StageCompleted        = "completed"
	StageFailed           = "failed"
)

// ProofJob tracks one staged proof submission to the L2 verifier.
// Maps to: proof_jobs table
type ProofJob struct {
	ID                 int64           `db:"id" json:"id"`
	JobID              int64           `db:"job_id" json:"job_id"`
	CalldataDir        string          `db:"calldata_dir" json:"calldata_dir"`
	Layout             string          `db:"layout" json:"layout"`
	Hasher             string          `db:"hasher" json:"hasher"`
	StoneVersion       string          `db:"stone_version" json:"stone_version"`
	MemoryVerification string          `db:"memory_verification" json:"memory_verification"`
	Status             string          `db:"status" json:"status"`
	CurrentStage       sql.NullString  `db:"current_stage" json:"current_stage,omitempty"`
	RetryCount         int             `db:"retry_count" json:"retry_count"`
	ErrorMessage       sql.NullString  `db:"error_message" json:"error_message,omitempty"`
	TxHashes           json.RawMessage `db:"tx_hashes" json:"tx_hashes"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// TxHashMap decodes the stage->transaction-hash record.
func (j *ProofJob) TxHashMap() (map[string]string, error) {
	out := make(map[string]string)
	if len(j.TxHashes) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(j.TxHashes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewProofJobParams are the immutable parameters fixed at job creation.
type NewProofJobParams struct {
	CalldataDir        string
	Layout             string
	Hasher             string
	StoneVersion       string
	MemoryVerification string
}
