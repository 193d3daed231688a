package types

// BlockHeaderAndSignature is a single signed-header item in the Data union.
type BlockHeaderAndSignature struct {
	Header     BlockHeader
	Signatures [][]byte
}

// BlockHeader is the minimal header shape the sync pipeline cares about:
// enough to drive the state-diff window and validate assembled diffs.
type BlockHeader struct {
	Number          BlockNumber
	Hash            []byte
	ParentHash      []byte
	StateDiffLength uint64
}

// StateDiffChunk is a single partial thin state diff in the Data union.
type StateDiffChunk struct {
	Part ThinStateDiff
}

// Fin is the explicit end-of-stream marker inside the payload stream for a
// given data type.
type Fin struct {
	DataType DataType
}

// Data is the union of streamed items a session can carry. Exactly one of
// Header, Diff or Fin is populated at a time.
type Data struct {
	Header *BlockHeaderAndSignature
	Diff   *StateDiffChunk
	Fin    *Fin
}

// IsFin reports whether this Data item is the terminal marker.
func (d Data) IsFin() bool {
	return d.Fin != nil
}

// StorageDiff is a per-contract map of storage key to value.
type StorageDiff map[string]map[string][]byte

// DeployedContract pairs a contract address with its class hash.
type DeployedContract struct {
	Address   string
	ClassHash string
}

// DeclaredClass pairs a class hash with its compiled class hash.
type DeclaredClass struct {
	ClassHash         string
	CompiledClassHash string
}

// ReplacedClass pairs a contract address with its new class hash.
type ReplacedClass struct {
	Address   string
	ClassHash string
}

// ThinStateDiff is the compact six-field representation of a block's state
// changes.
type ThinStateDiff struct {
	DeployedContracts         []DeployedContract
	StorageDiffs              StorageDiff
	DeclaredClasses           []DeclaredClass
	DeprecatedDeclaredClasses []string
	Nonces                    map[string]string
	ReplacedClasses           []ReplacedClass
}

// Len is the sum of cardinalities across the six fields: each deployed
// contract, each individual storage-key update (not each contract), each
// declared class, each deprecated declared class, each nonce update and
// each replaced class counts once.
func (d ThinStateDiff) Len() uint64 {
	var n uint64
	n += uint64(len(d.DeployedContracts))
	for _, inner := range d.StorageDiffs {
		n += uint64(len(inner))
	}
	n += uint64(len(d.DeclaredClasses))
	n += uint64(len(d.DeprecatedDeclaredClasses))
	n += uint64(len(d.Nonces))
	n += uint64(len(d.ReplacedClasses))
	return n
}

// IsEmpty reports whether none of the six fields contain a populated entry.
// A field containing a key whose value is an empty inner mapping still
// counts as empty: StorageDiffs with a contract key but no storage-key
// entries contributes zero to Len(), so IsEmpty is simply Len() == 0.
func (d ThinStateDiff) IsEmpty() bool {
	return d.Len() == 0
}
