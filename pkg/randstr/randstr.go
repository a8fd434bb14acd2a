package randstr

import gonanoid "github.com/matoous/go-nanoid/v2"

type Generator struct {
	alphabet string
}

func New(alphabet []byte) *Generator {
	return &Generator{alphabet: string(alphabet)}
}

func (g Generator) GenerateRandomString(length int) string {
	return gonanoid.MustGenerate(g.alphabet, length)
}
