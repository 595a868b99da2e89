package rpc

import (
	"io"
	"os"
)

type stdioReadWriteCloser struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

// Stdio returns a stream over the process's standard input and output.
func Stdio() io.ReadWriteCloser {
	return &stdioReadWriteCloser{reader: os.Stdin, writer: os.Stdout}
}

func (s *stdioReadWriteCloser) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *stdioReadWriteCloser) Write(p []byte) (int, error) {
	return s.writer.Write(p)
}

func (s *stdioReadWriteCloser) Close() error {
	rerr := s.reader.Close()
	werr := s.writer.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}
