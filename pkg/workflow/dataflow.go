package workflow

// PipeDatasByWidget groups pipe data per widget, keeping the order in which widgets were first seen.
//
// The zero value is an empty map. It is a persistent value: Set returns a new map and leaves the receiver
// untouched, so a snapshot can be shared freely.
type PipeDatasByWidget struct {
	widgetIDs []string
	pipeDatas map[string][]PipeData
}

// WidgetIDs returns the widget ids in first-seen order.
func (p PipeDatasByWidget) WidgetIDs() []string {
	res := make([]string, len(p.widgetIDs))
	copy(res, p.widgetIDs)

	return res
}

// Of returns a copy of the pipe data of one widget.
func (p PipeDatasByWidget) Of(widgetID string) []PipeData {
	pds := p.pipeDatas[widgetID]
	res := make([]PipeData, len(pds))
	copy(res, pds)

	return res
}

// Len returns the total number of pipe data.
func (p PipeDatasByWidget) Len() int {
	n := 0
	for _, pds := range p.pipeDatas {
		n += len(pds)
	}

	return n
}

// Flatten concatenates the pipe data of every widget, in widget order.
func Flatten(p PipeDatasByWidget) []PipeData {
	res := make([]PipeData, 0, p.Len())
	for _, id := range p.widgetIDs {
		res = append(res, p.pipeDatas[id]...)
	}

	return res
}

// Unflatten groups pipe data by widget id. Unflatten(Flatten(p)) groups identically to p.
//
// When the list holds several entries for the same pipe, the last one wins.
func Unflatten(pds []PipeData) PipeDatasByWidget {
	var res PipeDatasByWidget
	for _, pd := range pds {
		res = res.set(pd)
	}

	return res
}

// Set returns p with pd replacing the entry bound to the same (widget id, pipe name), or appended when
// there is none.
func Set(p PipeDatasByWidget, pd PipeData) PipeDatasByWidget {
	return p.clone().set(pd)
}

// SetAll applies Set for every pipe data of pds.
func SetAll(p PipeDatasByWidget, pds []PipeData) PipeDatasByWidget {
	res := p.clone()
	for _, pd := range pds {
		res = res.set(pd)
	}

	return res
}

// set writes pd into p, which must not be shared.
func (p PipeDatasByWidget) set(pd PipeData) PipeDatasByWidget {
	if p.pipeDatas == nil {
		p.pipeDatas = make(map[string][]PipeData)
	}

	pds, ok := p.pipeDatas[pd.WidgetID]
	if !ok {
		p.widgetIDs = append(p.widgetIDs, pd.WidgetID)
	}

	for i := range pds {
		if pds[i].PipeName == pd.PipeName {
			pds[i] = pd
			p.pipeDatas[pd.WidgetID] = pds

			return p
		}
	}

	p.pipeDatas[pd.WidgetID] = append(pds, pd)

	return p
}

func (p PipeDatasByWidget) clone() PipeDatasByWidget {
	res := PipeDatasByWidget{
		widgetIDs: make([]string, len(p.widgetIDs)),
		pipeDatas: make(map[string][]PipeData, len(p.pipeDatas)),
	}
	copy(res.widgetIDs, p.widgetIDs)
	for id, pds := range p.pipeDatas {
		cp := make([]PipeData, len(pds))
		copy(cp, pds)
		res.pipeDatas[id] = cp
	}

	return res
}

// Get returns the pipe data bound to pipe.
func Get(p PipeDatasByWidget, pipe Pipe) (PipeData, bool) {
	for _, pd := range p.pipeDatas[pipe.SourceWidgetID] {
		if pd.PipeName == pipe.Name {
			return pd, true
		}
	}

	return PipeData{}, false
}

// GetPipeDatas resolves pipes into their pipe data, in declaration order. Pipes without data are omitted,
// so len(result) < len(pipes) means some are missing.
func GetPipeDatas(pipes []Pipe, p PipeDatasByWidget) []PipeData {
	res := make([]PipeData, 0, len(pipes))
	for _, pipe := range pipes {
		if pd, ok := Get(p, pipe); ok {
			res = append(res, pd)
		}
	}

	return res
}

// MissingPipes returns the pipes of the list without any pipe data.
func MissingPipes(pipes []Pipe, p PipeDatasByWidget) []Pipe {
	var res []Pipe
	for _, pipe := range pipes {
		if _, ok := Get(p, pipe); !ok {
			res = append(res, pipe)
		}
	}

	return res
}
