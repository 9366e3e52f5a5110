package aggregates

// WriteTxOwnership says where a write's transaction boundary lives.
type WriteTxOwnership string

// WriteTxOwnedByAggregate: the aggregate opens, retries and commits its own
// transaction. Callers never hand one in.
const WriteTxOwnedByAggregate WriteTxOwnership = "aggregate_owned"

// ReadPolicy limits which reads an aggregate exposes.
type ReadPolicy string

// ReadPolicyInvariantScoped: the aggregate only reads rows it needs to decide
// an invariant. History and listing go through the table repos.
const ReadPolicyInvariantScoped ReadPolicy = "invariant_scoped_reads"

// Contract is the self-description every aggregate reports.
type Contract struct {
	Name             string
	WriteTxOwnership WriteTxOwnership
	ReadPolicy       ReadPolicy
	Notes            string
}

type Aggregate interface {
	Contract() Contract
}

func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.WriteTxOwnership == WriteTxOwnedByAggregate
}
