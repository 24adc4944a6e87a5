package port

import "errors"

// ErrRefusal is returned (wrapped) by LLM adapters when the model declined
// to answer, e.g. a safety block or content filter. The gateway maps it to
// the model-refusal failure kind.
var ErrRefusal = errors.New("model refused to answer")
