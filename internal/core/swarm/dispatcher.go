package swarm

// ============================================================================
//                              行为调度
// ============================================================================

// pollBehaviours 轮询全部行为
//
// 起点每轮轮换，每个行为单轮最多处理 PollBudget 条消息，
// 任何一个行为的积压都不会让其它行为饿死。返回是否仍有积压。
func (s *Swarm) pollBehaviours() bool {
	n := len(s.behaviours)
	if n == 0 {
		return false
	}

	start := s.pollOffset
	s.pollOffset = (s.pollOffset + 1) % n

	backlog := false
	for i := 0; i < n; i++ {
		b := s.behaviours[(start+i)%n]
		actions, more := b.Poll(s.cfg.PollBudget)
		for _, a := range actions {
			s.apply(b, a)
		}
		if more {
			backlog = true
		}
	}
	return backlog
}

// apply 执行行为产生的动作
func (s *Swarm) apply(b NetworkBehaviour, a ToSwarm) {
	switch a := a.(type) {
	case GenerateEvent:
		s.emit(BehaviourEvent{Behaviour: b.Name(), Event: a.Event})
	case Dial:
		s.handleDial(msgDial{addr: a.Addr, peer: a.Peer})
	case CloseConnection:
		s.closeConnections(a.Peer, a.ConnID)
	case AddConnection:
		if err := s.addConnection(a.Conn); err != nil {
			s.emit(IncomingConnectionError{
				LocalAddr:  a.Conn.LocalMultiaddr(),
				RemoteAddr: a.Conn.RemoteMultiaddr(),
				Err:        err,
			})
		}
	case ExternalAddr:
		s.addExternalAddr(a.Addr)
	default:
		log.Warn("未知的行为动作", "behaviour", b.Name())
	}
}
