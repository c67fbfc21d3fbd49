package pipeline

import "sync"

// Registry is the component factory ABI: a single constructor per
// component type, dispatched by the type prefix of a component's name
// (spec.md §6, "Component factory ABI").
type Registry struct {
	mu         sync.RWMutex
	receivers  map[string]ReceiverFactory
	processors map[string]ProcessorFactory
	exporters  map[string]ExporterFactory
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		receivers:  make(map[string]ReceiverFactory),
		processors: make(map[string]ProcessorFactory),
		exporters:  make(map[string]ExporterFactory),
	}
}

func (r *Registry) RegisterReceiver(typ string, f ReceiverFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[typ] = f
}

func (r *Registry) RegisterProcessor(typ string, f ProcessorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[typ] = f
}

func (r *Registry) RegisterExporter(typ string, f ExporterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[typ] = f
}

func (r *Registry) BuildReceiver(name string, cfg any) (Receiver, error) {
	cn, err := ParseComponentName(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.receivers[cn.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownComponentTypeError{Kind: "receiver", Type: cn.Type}
	}
	rcv, err := f(name, cfg)
	if err != nil {
		return nil, &ComponentNotCreatedError{Kind: "receiver", Name: name, Reason: err.Error()}
	}
	return rcv, nil
}

func (r *Registry) BuildProcessor(name string, cfg any) (Processor, error) {
	cn, err := ParseComponentName(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.processors[cn.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownComponentTypeError{Kind: "processor", Type: cn.Type}
	}
	p, err := f(name, cfg)
	if err != nil {
		return nil, &ComponentNotCreatedError{Kind: "processor", Name: name, Reason: err.Error()}
	}
	return p, nil
}

func (r *Registry) BuildExporter(name string, cfg any) (Exporter, error) {
	cn, err := ParseComponentName(name)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	f, ok := r.exporters[cn.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, &UnknownComponentTypeError{Kind: "exporter", Type: cn.Type}
	}
	e, err := f(name, cfg)
	if err != nil {
		return nil, &ComponentNotCreatedError{Kind: "exporter", Name: name, Reason: err.Error()}
	}
	return e, nil
}
