package embeddings

// fastEmbedDimensions lists the output dimension of every model the
// fastembed provider can load, keyed by fastembed model name.
var fastEmbedDimensions = map[string]int{
	"fast-bge-small-en-v1.5": 384,
	"fast-bge-small-en":      384,
	"fast-bge-base-en-v1.5":  768,
	"fast-bge-base-en":       768,
	"fast-all-MiniLM-L6-v2":  384,
}

var friendlyModelNames = map[string]string{
	"BAAI/bge-small-en-v1.5":                 "fast-bge-small-en-v1.5",
	"BAAI/bge-small-en":                      "fast-bge-small-en",
	"BAAI/bge-base-en-v1.5":                  "fast-bge-base-en-v1.5",
	"BAAI/bge-base-en":                       "fast-bge-base-en",
	"sentence-transformers/all-MiniLM-L6-v2": "fast-all-MiniLM-L6-v2",
}

// FastEmbedModelDimension returns the dimension of a known model, accepting
// both friendly and fastembed names.
func FastEmbedModelDimension(model string) (int, bool) {
	if name, ok := friendlyModelNames[model]; ok {
		model = name
	}
	dim, ok := fastEmbedDimensions[model]
	return dim, ok
}
