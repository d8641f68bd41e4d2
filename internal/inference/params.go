package inference

// Defaults applied when corresponding Params fields are unset.
const (
	DefaultTemperature  float32 = 1.0
	DefaultTopK                 = 50
	DefaultTopP         float32 = 0.9
	DefaultMaxNewTokens         = 1024

	// TokenFromModel means the backend uses the id declared by the model's tokenizer.
	TokenFromModel = -1
)

// Params is the generation configuration bundle passed to a Runtime.
type Params struct {
	// DoSample enables probabilistic sampling; false means greedy decoding.
	DoSample     bool
	Temperature  float32
	TopK         int
	TopP         float32
	MaxNewTokens int
	EOSTokenID   int
	PadTokenID   int
	// Seed 0 lets the backend choose.
	Seed int
	Stop []string
}

// DefaultParams returns sampling on, temperature 1.0, top-k 50, top-p 0.9 and
// 1024 new tokens, with end-of-sequence and padding ids taken from the model.
func DefaultParams() Params {
	return Params{
		DoSample:     true,
		Temperature:  DefaultTemperature,
		TopK:         DefaultTopK,
		TopP:         DefaultTopP,
		MaxNewTokens: DefaultMaxNewTokens,
		EOSTokenID:   TokenFromModel,
		PadTokenID:   TokenFromModel,
	}
}

// WithDefaults fills zero-valued numeric fields from DefaultParams.
// DoSample and Stop are kept as given.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Temperature <= 0 {
		p.Temperature = d.Temperature
	}
	if p.TopK <= 0 {
		p.TopK = d.TopK
	}
	if p.TopP <= 0 || p.TopP > 1 {
		p.TopP = d.TopP
	}
	if p.MaxNewTokens <= 0 {
		p.MaxNewTokens = d.MaxNewTokens
	}
	if p.EOSTokenID == 0 {
		p.EOSTokenID = d.EOSTokenID
	}
	if p.PadTokenID == 0 {
		p.PadTokenID = d.PadTokenID
	}
	return p
}

// effectiveTemperature maps greedy decoding onto llama.cpp's convention (temperature 0).
func (p Params) effectiveTemperature() float32 {
	if !p.DoSample {
		return 0
	}
	return p.Temperature
}
