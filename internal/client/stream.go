package client

import (
	"io"
	"iter"
	"sync"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"sfchat/internal/models"
)

// Stream yields the content of a streamed completion in arrival order. It is
// finite and cannot be restarted. A Stream is not safe for concurrent use.
type Stream struct {
	raw          *openai.ChatCompletionStream
	closeOnce    sync.Once
	finishReason string
	done         bool
}

func newStream(raw *openai.ChatCompletionStream) *Stream {
	return &Stream{raw: raw}
}

// Recv returns the next non-empty fragment. It returns io.EOF once the
// service has finished.
func (s *Stream) Recv() (models.Fragment, error) {
	if s.done {
		return models.Fragment{}, io.EOF
	}
	for {
		chunk, err := s.raw.Recv()
		if errors.Is(err, io.EOF) {
			s.done = true
			return models.Fragment{}, io.EOF
		}
		if err != nil {
			s.done = true
			return models.Fragment{}, Classify(err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			s.finishReason = string(choice.FinishReason)
		}
		if choice.Delta.Content == "" {
			continue
		}
		return models.Fragment{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}, nil
	}
}

// Fragments returns the remaining content as an iterator. The stream is
// closed when iteration ends. A failure is yielded once as the final element.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()
		for {
			frag, err := s.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(frag.Content, nil) {
				return
			}
		}
	}
}

// Collect drains the stream and returns the concatenated content.
func (s *Stream) Collect() (string, error) {
	var buf []byte
	for content, err := range s.Fragments() {
		if err != nil {
			return string(buf), err
		}
		buf = append(buf, content...)
	}
	return string(buf), nil
}

// FinishReason reports why generation stopped, once known.
func (s *Stream) FinishReason() string {
	return s.finishReason
}

// Close releases the underlying connection. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.done = true
		err = s.raw.Close()
	})
	return err
}
