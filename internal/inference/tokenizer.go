package inference

import (
	"errors"

	"github.com/UnknownOlympus/magma/internal/gguf"
)

// Tokenizer holds the special token ids of the loaded vocabulary. Encoding and decoding go
// through the engine, which owns the vocabulary itself.
type Tokenizer struct {
	BOSID int // -1 when the model has no BOS token
	EOSID int
	PadID int // equals EOSID when the model defines no padding token
}

func newTokenizer(md *gguf.Metadata) (Tokenizer, error) {
	if md.EOSTokenID < 0 {
		return Tokenizer{}, errors.New("tokenizer defines no end-of-sequence token")
	}
	if md.TokenCount > 0 && md.EOSTokenID >= md.TokenCount {
		return Tokenizer{}, errors.New("end-of-sequence token is outside the vocabulary")
	}

	tk := Tokenizer{BOSID: md.BOSTokenID, EOSID: md.EOSTokenID, PadID: md.PadTokenID}
	if tk.PadID < 0 {
		tk.PadID = tk.EOSID
	}

	return tk, nil
}

// IsSpecial reports whether id is a control token stripped from decoded output.
func (t Tokenizer) IsSpecial(id int) bool {
	return id == t.EOSID || id == t.PadID || (t.BOSID >= 0 && id == t.BOSID)
}
