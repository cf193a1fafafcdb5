package server

import "fmt"

type Server struct {
	addr  string
	count int
}

func NewServer(addr string, opts ...string) *Server {
	s := &Server{addr: addr}
	return s
}

func (s *Server) ServeHTTP(w, r string, _ int) {
	s.count++
	s.count += 2
	var x int
	go func() {}()
	defer fmt.Println(x)
	for i := 0; i < 3; i++ {
		continue
	}
	switch x {
	case 1:
		fallthrough
	default:
	}
	fmt.Println(w, r)
}

func helper(int, string) {
	cb := func(v int) int { return v }
	_ = cb
}
