package domain

// Routing 工艺路线（一组有序的生产工序）
type Routing struct {
	RoutingID string `db:"routing_id"` // VARCHAR(64), PRIMARY KEY
	Name      string `db:"name"`       // VARCHAR(128), NOT NULL

	// 工序按 Seq 升序排列；一旦被批次引用即不可变
	Stages []ProductionStage `db:"-"`
}

// ProductionStage 生产工序（工艺路线中的一个有序位置）
type ProductionStage struct {
	StageID   string `db:"stage_id"`   // VARCHAR(64), PRIMARY KEY
	RoutingID string `db:"routing_id"` // VARCHAR(64), NOT NULL, REFERENCES routings
	Name      string `db:"name"`       // VARCHAR(128), NOT NULL（如 "cutting"）
	Seq       int    `db:"seq"`        // 序号，路线内唯一且连续

	// 返工前置工序：允许从本工序回退到该工序（可空）
	ReworkPredecessorID *string `db:"rework_predecessor_id"` // VARCHAR(64), nullable
}

// StageByID 按ID查找工序
func (r *Routing) StageByID(stageID string) (*ProductionStage, bool) {
	for i := range r.Stages {
		if r.Stages[i].StageID == stageID {
			return &r.Stages[i], true
		}
	}
	return nil, false
}

// NextStage 返回指定工序的直接后继工序（终序返回 nil）
func (r *Routing) NextStage(stageID string) *ProductionStage {
	cur, ok := r.StageByID(stageID)
	if !ok {
		return nil
	}
	for i := range r.Stages {
		if r.Stages[i].Seq == cur.Seq+1 {
			return &r.Stages[i]
		}
	}
	return nil
}

// TerminalStage 返回路线的终序工序
func (r *Routing) TerminalStage() *ProductionStage {
	var terminal *ProductionStage
	for i := range r.Stages {
		if terminal == nil || r.Stages[i].Seq > terminal.Seq {
			terminal = &r.Stages[i]
		}
	}
	return terminal
}

// IsTerminal 判断工序是否为终序
func (r *Routing) IsTerminal(stageID string) bool {
	t := r.TerminalStage()
	return t != nil && t.StageID == stageID
}
